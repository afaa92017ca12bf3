package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tournevent/shipquote/internal/quote"
	"github.com/tournevent/shipquote/internal/server"
	"go.uber.org/zap"
)

var version = "0.0.1"

var (
	envFile string
	migrate bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shipquote",
	Short:   "Multi-carrier shipping rate aggregation service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP quote API",
	RunE:  runServe,
}

var quoteCmd = &cobra.Command{
	Use:   "quote <cart.json>",
	Short: "Quote a cart from a JSON file and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuote,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	serveCmd.Flags().BoolVar(&migrate, "migrate", false, "create or update the rate table schema before serving")
	rootCmd.AddCommand(serveCmd, quoteCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	if migrate {
		if err := app.migrate(ctx); err != nil {
			return err
		}
	}

	app.logger.Info("Starting shipquote",
		zap.Int("port", app.cfg.Port),
		zap.String("version", app.cfg.Version),
		zap.Strings("carriers", app.registry.Names()),
	)

	srv := server.New(server.Config{
		Port:         app.cfg.Port,
		QuoteTimeout: app.cfg.QuoteTimeout,
	}, app.engine, app.registry, nil, app.logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cartFile is the JSON document read by the quote command.
type cartFile struct {
	Mode        string            `json:"mode"`
	Destination quote.Destination `json:"destination"`
	Lines       []quote.CartLine  `json:"lines"`
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading cart: %w", err)
	}
	var cart cartFile
	if err := json.Unmarshal(data, &cart); err != nil {
		return fmt.Errorf("parsing cart: %w", err)
	}

	req := &quote.Request{Lines: cart.Lines, Destination: &cart.Destination}
	if req.Lines == nil {
		req.Lines = []quote.CartLine{}
	}
	if cart.Mode != "" {
		mode, err := quote.ParseMode(cart.Mode)
		if err != nil {
			return err
		}
		req.Mode = &mode
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	if app.cfg.QuoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.cfg.QuoteTimeout)
		defer cancel()
	}

	result, err := app.engine.Quote(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
