package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/modelsaur/storagegate/cmd/storagegate/internal/config"
	"github.com/modelsaur/storagegate/pkg/gate"
	"github.com/modelsaur/storagegate/pkg/platform"
	"github.com/modelsaur/storagegate/pkg/storage"
)

func init() {
	RegisterCommand(&Command{
		Name:  "simulate",
		Short: "Run the permission flow against a simulated device",
		Long: `Run the startup permission flow against an in-memory Android host.

The simulator reports the given API level, answers the justification
dialog and the system consent prompt, then prints every call the gate
made and the final state. A sample design is then saved to the configured
external directory (storage.external_dir) to show whether the capability
allows it, and the outcome is recorded in the preferences file under
storage.internal_dir.

Flags:
  --sdk N        API level reported by the device (default: 29)
  --granted      The permission is already granted at launch
  --ack          Acknowledge the justification dialog (default)
  --dismiss      Dismiss the justification dialog
  --grant        Grant the permission at the consent prompt (default)
  --deny         Deny the permission at the consent prompt
  --out DIR      Use DIR for both design and preferences storage

Examples:
  storagegate simulate --sdk 22
  storagegate simulate --sdk 29 --deny
  storagegate simulate --sdk 33 --dismiss`,
		Usage: "storagegate simulate [--sdk N] [--granted] [--ack|--dismiss] [--grant|--deny] [--out DIR]",
		Run:   runSimulate,
	})
}

type simulateOptions struct {
	sdk     int
	granted bool
	ack     bool
	grant   bool
	outDir  string
}

func parseSimulateFlags(args []string) (simulateOptions, error) {
	opts := simulateOptions{sdk: 29, ack: true, grant: true}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--granted":
			opts.granted = true
		case arg == "--ack":
			opts.ack = true
		case arg == "--dismiss":
			opts.ack = false
		case arg == "--grant":
			opts.grant = true
		case arg == "--deny":
			opts.grant = false
		case arg == "--sdk" || strings.HasPrefix(arg, "--sdk="):
			v, next, ok := flagValue(args, i, "--sdk")
			if !ok {
				return opts, fmt.Errorf("--sdk requires an API level")
			}
			sdk, err := strconv.Atoi(v)
			if err != nil || sdk <= 0 {
				return opts, fmt.Errorf("invalid --sdk %q: must be a positive integer", v)
			}
			opts.sdk = sdk
			i = next
		case arg == "--out" || strings.HasPrefix(arg, "--out="):
			v, next, ok := flagValue(args, i, "--out")
			if !ok || v == "" {
				return opts, fmt.Errorf("--out requires a directory path")
			}
			opts.outDir = v
			i = next
		default:
			return opts, fmt.Errorf("unknown flag %q", arg)
		}
	}
	return opts, nil
}

func runSimulate(args []string) error {
	opts, err := parseSimulateFlags(args)
	if err != nil {
		return err
	}

	cfg, err := resolveConfig("cmd.simulate")
	if err != nil {
		return err
	}

	_, err = simulate(context.Background(), stdout, newLogger(), cfg, opts)
	return err
}

// simulation is the outcome of one simulated launch.
type simulation struct {
	Calls       []string
	Status      gate.Status
	CanWrite    bool
	Saved       string
	Preferences string
}

func simulate(ctx context.Context, w io.Writer, logger *slog.Logger, cfg *config.Resolved, opts simulateOptions) (*simulation, error) {
	var granted []string
	if opts.granted {
		granted = append(granted, string(cfg.Request.Permission))
	}
	bridge := platform.NewSimBridge(opts.sdk, granted...)
	bridge.Acknowledge = opts.ack
	bridge.Grant = opts.grant

	host := platform.NewHost()
	g := gate.New(host,
		gate.WithLogger(logger),
		gate.WithStorageRequest(cfg.Request),
		gate.WithThreshold(cfg.RuntimeSDK),
		gate.WithAckLabel(cfg.AckLabel),
		gate.WithFallback(func(res gate.Result) {
			logger.Warn("unhandled permission result", "code", res.Code)
		}),
	)
	unlisten := g.Listen(func(code gate.RequestCode, status gate.Status) {
		fmt.Fprintf(w, "  request %d -> %s\n", code, status)
	})
	defer unlisten()

	platform.SetNativeBridge(bridge)
	defer platform.SetNativeBridge(nil)

	activity := platform.NewActivity(ctx, g, host, logger)
	activity.Attach()
	defer activity.Detach()

	fmt.Fprintf(w, "Device: API %d, permission %s\n", opts.sdk, grantedLabel(opts.granted))
	bridge.Launch()
	bridge.Drain()

	code := cfg.Request.Code
	sim := &simulation{
		Calls:    bridge.Calls(),
		Status:   g.State(code),
		CanWrite: g.Capabilities().CanWrite(),
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Host calls:")
	if len(sim.Calls) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, call := range sim.Calls {
		fmt.Fprintf(w, "  %s\n", call)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Request %d: %s\n", code, sim.Status)
	fmt.Fprintf(w, "Can write: %t\n", sim.CanWrite)

	externalDir, internalDir := cfg.ExternalDir, cfg.InternalDir
	if opts.outDir != "" {
		externalDir, internalDir = opts.outDir, opts.outDir
	}
	store := storage.New(externalDir, internalDir, g.Capabilities(), logger)
	name := storage.DesignName(time.Now())
	path, err := store.SaveDesign(name, strings.NewReader("design\n"))
	switch {
	case errors.Is(err, storage.ErrWriteNotGranted):
		fmt.Fprintf(w, "Save refused:\n\n%s\n", storage.PermissionNotice)
	case err != nil:
		return sim, fmt.Errorf("save design: %w", err)
	default:
		sim.Saved = path
		fmt.Fprintf(w, "Saved: %s\n", path)
	}

	prefs := fmt.Sprintf("sdk=%d\nstatus=%s\n", opts.sdk, sim.Status)
	if err := store.SavePreferences(strings.NewReader(prefs)); err != nil {
		return sim, err
	}
	sim.Preferences = filepath.Join(internalDir, storage.PreferencesFile)
	fmt.Fprintf(w, "Preferences: %s\n", sim.Preferences)

	return sim, nil
}

func grantedLabel(granted bool) string {
	if granted {
		return "granted"
	}
	return "not granted"
}
