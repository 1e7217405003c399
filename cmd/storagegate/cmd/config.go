package cmd

import (
	"fmt"
	"io"

	"github.com/modelsaur/storagegate/cmd/storagegate/internal/config"
)

func init() {
	RegisterCommand(&Command{
		Name:  "config",
		Short: "Show the resolved configuration",
		Long: `Show the configuration resolved from storagegate.yaml and go.mod.

Values not set in storagegate.yaml fall back to their defaults: the app
name and id come from the module path, the request is
WRITE_EXTERNAL_STORAGE with code 999, and runtime permissions start at
API level 23.`,
		Usage: "storagegate config",
		Run:   runConfig,
	})
}

func runConfig(args []string) error {
	cfg, err := resolveConfig("cmd.config")
	if err != nil {
		return err
	}

	printConfig(stdout, cfg)
	return nil
}

func printConfig(w io.Writer, cfg *config.Resolved) {
	module := cfg.ModulePath
	if module == "" {
		module = "(none)"
	}
	fmt.Fprintf(w, "Project:        %s\n", cfg.Root)
	fmt.Fprintf(w, "Module:         %s\n", module)
	fmt.Fprintf(w, "App:            %s (%s)\n", cfg.AppName, cfg.AppID)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Gate:")
	fmt.Fprintf(w, "  permission    %s\n", cfg.Request.Permission)
	fmt.Fprintf(w, "  request code  %d\n", cfg.Request.Code)
	fmt.Fprintf(w, "  runtime sdk   %d\n", cfg.RuntimeSDK)
	fmt.Fprintf(w, "  ack label     %s\n", cfg.AckLabel)
	fmt.Fprintf(w, "  justification %q\n", cfg.Request.Justification)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Storage:")
	fmt.Fprintf(w, "  external      %s\n", cfg.ExternalDir)
	fmt.Fprintf(w, "  internal      %s\n", cfg.InternalDir)
	fmt.Fprintf(w, "  log level     %s\n", cfg.LogLevel)
}
