package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"procbot/internal/app"
)

var opts app.Options

func main() {
	rootCmd := &cobra.Command{
		Use:           "procbot",
		Short:         "Telegram bot that reminds process owners about daily deadlines",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "path to env file (default .env when present)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the chat loop and the reminder scheduler",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot()
			},
		},
		&cobra.Command{
			Use:   "import <file.yaml>",
			Short: "Append the processes of a catalog file to the store",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := app.ImportCatalog(cmd.Context(), opts, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d processes.\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Write all processes to the configured Google spreadsheet",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
				defer cancel()
				n, err := app.ExportProcesses(ctx, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows.\n", n)
				return nil
			},
		},
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runBot() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.NewApp(ctx, opts)
	if err != nil {
		return err
	}

	stop := func(reason app.StopReason) {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx, reason)
	}

	if err := a.Start(ctx); err != nil {
		stop(app.StopFatalError)
		return err
	}

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopReasonFromSignal(sig)
	case <-a.Done():
		reason = app.StopFatalError
	}
	stop(reason)
	return a.Err()
}
