package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/remindd/internal/apperr"
)

var Version = "dev"

type rootFlags struct {
	configPath string
	envFile    string
	identity   string
	offline    bool
}

func main() {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "remindd",
		Short:         "Reminders that sync and share across devices",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgenda(cmd.Context(), flags)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with REMINDD_* overrides")
	rootCmd.PersistentFlags().StringVarP(&flags.identity, "identity", "i", "", "signed-in identity (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flags.offline, "offline", false, "keep every change local")

	rootCmd.AddCommand(agendaCmd(flags))
	rootCmd.AddCommand(todayCmd(flags))
	rootCmd.AddCommand(syncCmd(flags))
	rootCmd.AddCommand(resyncCmd(flags))
	rootCmd.AddCommand(importCmd(flags))
	rootCmd.AddCommand(exportCmd(flags))
	rootCmd.AddCommand(shareCmd(flags))
	rootCmd.AddCommand(unshareCmd(flags))
	rootCmd.AddCommand(doCmd(flags))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "remindd: %v\n", err)
		if hint := apperr.Guidance(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
