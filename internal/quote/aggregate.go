package quote

import "strings"

// DefaultConnector joins the names of composite options.
const DefaultConnector = " + "

// Aggregator folds partial results into one. Join treats options as
// alternatives; Combine treats them as parts of the same delivery.
type Aggregator struct {
	connector string
}

// NewAggregator creates an aggregator joining composite names with connector.
func NewAggregator(connector string) *Aggregator {
	if connector == "" {
		connector = DefaultConnector
	}
	return &Aggregator{connector: connector}
}

// Join appends the options of additional whose name is not already offered
// by current. Errors are concatenated.
func (a *Aggregator) Join(current, additional Result) Result {
	out := Result{
		Options:                      append([]Option(nil), current.Options...),
		Errors:                       concatErrors(current.Errors, additional.Errors),
		ShippedFromMultipleLocations: current.ShippedFromMultipleLocations || additional.ShippedFromMultipleLocations,
	}
	for _, opt := range additional.Options {
		if indexOfService(out.Options, opt.Name) < 0 {
			out.Options = append(out.Options, opt)
		}
	}
	return out
}

// Combine merges additional into current as further parts of the same
// shipment. Options offering the same service are summed. The remaining
// options of additional are paired with the current options that found no
// match, producing composites named "<current><connector><additional>",
// subject to category compatibility. Options of current left without a
// partner keep their partial coverage; callers drop them by Covers.
//
// force asks for composites to be built without holding unmatched options
// back. Composites only pair with current options that found no match, so
// summing always runs first and force leaves the result unchanged; it is
// kept so callers can state which pass they expect. When current has no
// options, additional is adopted as is.
func (a *Aggregator) Combine(current, additional Result, force bool) Result {
	out := Result{
		Errors:                       concatErrors(current.Errors, additional.Errors),
		ShippedFromMultipleLocations: current.ShippedFromMultipleLocations || additional.ShippedFromMultipleLocations,
	}
	if len(additional.Options) == 0 {
		out.Options = append([]Option(nil), current.Options...)
		return out
	}
	if len(current.Options) == 0 {
		out.Options = append([]Option(nil), additional.Options...)
		return out
	}

	out.Options = append([]Option(nil), current.Options...)
	partners := make([]Option, len(current.Options))
	copy(partners, current.Options)
	matched := make([]bool, len(out.Options))

	var stash []Option
	for _, opt := range additional.Options {
		if i := indexOfService(current.Options, opt.Name); i >= 0 {
			out.Options[i] = accumulate(out.Options[i], opt)
			matched[i] = true
			continue
		}
		stash = append(stash, opt)
	}
	for _, opt := range stash {
		out.Options = append(out.Options, a.compose(partners, matched, opt)...)
	}
	return out
}

// Fold combines the results of every unit of one delivery in order. After
// each unit that returned options, only options covering all such units so
// far are kept, so later units sum into complete options only.
func (a *Aggregator) Fold(partials []Result) Result {
	var out Result
	responding := 0
	for _, p := range partials {
		out = a.Combine(out, p, false)
		if len(p.Options) == 0 {
			continue
		}
		responding++
		out.Options = covering(out.Options, responding)
	}
	return out
}

func covering(options []Option, n int) []Option {
	kept := options[:0]
	for _, o := range options {
		if o.Covers >= n {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// compose pairs opt with every unmatched, compatible partner.
func (a *Aggregator) compose(partners []Option, matched []bool, opt Option) []Option {
	var out []Option
	for i, p := range partners {
		if matched[i] || !p.Category.compatible(opt.Category) {
			continue
		}
		c := accumulate(p, opt)
		c.Name = a.joinParts(p.Name, opt.Name)
		c.CarrierSystemName = a.joinParts(p.CarrierSystemName, opt.CarrierSystemName)
		out = append(out, c)
	}
	return out
}

// joinParts names a composite after every distinct part of both sides, in
// the order they were first added.
func (a *Aggregator) joinParts(left, right string) string {
	var parts []string
	for _, name := range append(strings.Split(left, a.connector), strings.Split(right, a.connector)...) {
		if name == "" || indexOfName(parts, name) >= 0 {
			continue
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, a.connector)
}

func indexOfName(names []string, name string) int {
	for i, n := range names {
		if sameService(n, name) {
			return i
		}
	}
	return -1
}

// accumulate adds part to base: rates and coverage sum, transit is the longer.
func accumulate(base, part Option) Option {
	base.Rate = base.Rate.Add(part.Rate)
	base.Covers += part.Covers
	base.TransitDays = maxTransit(base.TransitDays, part.TransitDays)
	return base
}

func indexOfService(options []Option, name string) int {
	for i := range options {
		if sameService(options[i].Name, name) {
			return i
		}
	}
	return -1
}

func concatErrors(a, b []string) []string {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
