package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signflow/signflow/internal/config"
	"github.com/signflow/signflow/internal/logging"
)

// Version is the application version.
const Version = "0.1.0"

// cfg is the resolved configuration shared by subcommands.
var cfg *config.Server

var rootCmd = &cobra.Command{
	Use:           "signflow",
	Short:         "Real-time sign language recognition server",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if err := c.ApplyFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if _, err := logging.Setup(c.LogLevel, c.LogFormat); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

// Execute runs the root command until it finishes or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(serveCmd, watchCmd, languagesCmd)
}
