package cmd

import (
	"fmt"
	"io"

	"github.com/modelsaur/storagegate/cmd/storagegate/internal/config"
)

func init() {
	RegisterCommand(&Command{
		Name:  "manifest",
		Short: "Print AndroidManifest.xml entries",
		Long: `Print the AndroidManifest.xml entries the permission gate relies on.

The output contains the package id and one <uses-permission> element for
the configured storage permission. Copy it into the launcher's manifest;
a runtime request for a permission the manifest does not declare is
denied without showing the system prompt.`,
		Usage: "storagegate manifest",
		Run:   runManifest,
	})
}

func runManifest(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument %q\n\nUsage: storagegate manifest", args[0])
	}

	cfg, err := resolveConfig("cmd.manifest")
	if err != nil {
		return err
	}

	writeManifest(stdout, cfg)
	return nil
}

func writeManifest(w io.Writer, cfg *config.Resolved) {
	fmt.Fprintf(w, "<manifest xmlns:android=\"http://schemas.android.com/apk/res/android\"\n")
	fmt.Fprintf(w, "    package=\"%s\">\n", cfg.AppID)
	fmt.Fprintf(w, "    <uses-permission android:name=\"%s\" />\n", cfg.Request.Permission)
	fmt.Fprintf(w, "</manifest>\n")
}
