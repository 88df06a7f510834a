package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sitedigest/internal/app"
	"sitedigest/internal/config"
)

type rootFlags struct {
	config  string
	envFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	root := &cobra.Command{
		Use:           "sitedigest",
		Short:         "Queue site activity and mail it out as periodic digests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadDotEnv(f.envFile)
		},
	}
	root.PersistentFlags().StringVarP(&f.config, "config", "c", "./config.yaml", "config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "dotenv file with secrets; ignored when missing")

	root.AddCommand(
		newServeCmd(&f),
		newRunCmd(&f),
		newEnqueueCmd(&f),
		newPreviewCmd(&f),
		newQueueCmd(&f),
		newStatusCmd(),
	)
	return root
}

// withApp opens the app for a one-shot command and closes it afterwards.
func withApp(f *rootFlags, fn func(a *app.App) error) error {
	a, err := app.New(f.config)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
