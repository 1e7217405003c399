// Package cmd implements the storagegate CLI commands.
//
// A root command dispatches to subcommands (manifest, simulate, config).
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/modelsaur/storagegate/cmd/storagegate/internal/config"
	"github.com/modelsaur/storagegate/pkg/errors"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

// Command represents a CLI command.
type Command struct {
	Name        string
	Short       string
	Long        string
	Usage       string
	Run         func(args []string) error
	SubCommands []*Command
}

var rootCmd = &Command{
	Name:  "storagegate",
	Short: "storagegate - Android storage permission gate",
	Long: `storagegate checks and requests WRITE_EXTERNAL_STORAGE before the
native application layer saves designs, and records the outcome for
the rest of the app.

Use "storagegate <command> --help" for more information about a command.`,
	Usage: "storagegate <command> [flags]",
}

// Commands registered with the CLI.
var commands = make(map[string]*Command)

// stdout and stderr are swapped out by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// logLevel comes from storagegate.yaml unless --verbose forces debug.
var (
	logLevel = new(slog.LevelVar)
	verbose  bool
)

// RegisterCommand adds a command to the CLI.
func RegisterCommand(cmd *Command) {
	commands[cmd.Name] = cmd
	rootCmd.SubCommands = append(rootCmd.SubCommands, cmd)
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return run(os.Args[1:])
}

func run(args []string) error {
	verbose = false
	logLevel.Set(slog.LevelInfo)

	if len(args) == 0 {
		printHelp(rootCmd)
		return nil
	}

	var filteredArgs []string
	for _, arg := range args {
		switch arg {
		case "-h", "--help", "help":
			if len(filteredArgs) == 0 {
				printHelp(rootCmd)
				return nil
			}
			filteredArgs = append(filteredArgs, arg)
		case "-v", "--version", "version":
			if len(filteredArgs) == 0 {
				fmt.Fprintf(stdout, "storagegate version %s (built %s)\n", Version, BuildTime)
				return nil
			}
			filteredArgs = append(filteredArgs, arg)
		case "--verbose":
			verbose = true
			logLevel.Set(slog.LevelDebug)
		default:
			filteredArgs = append(filteredArgs, arg)
		}
	}
	args = filteredArgs

	if len(args) == 0 {
		printHelp(rootCmd)
		return nil
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", cmdName)
		printHelp(rootCmd)
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	cmdArgs := args[1:]
	for _, arg := range cmdArgs {
		if arg == "-h" || arg == "--help" || arg == "help" {
			printCommandHelp(cmd)
			return nil
		}
	}

	return cmd.Run(cmdArgs)
}

// resolveConfig finds the project root, resolves its configuration and
// applies the configured log level. Failures are reported as config errors.
func resolveConfig(op string) (*config.Resolved, error) {
	root, err := config.FindProjectRoot()
	if err != nil {
		return nil, reportConfig(op, err)
	}

	cfg, err := config.Resolve(root)
	if err != nil {
		return nil, reportConfig(op, err)
	}

	if !verbose {
		logLevel.Set(cfg.LogLevel)
	}
	return cfg, nil
}

func reportConfig(op string, err error) error {
	errors.Report(&errors.GateError{
		Op:   op,
		Kind: errors.KindConfig,
		Err:  err,
	})
	return err
}

// newLogger returns a text logger on stderr at the current level.
func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel}))
}

func printHelp(cmd *Command) {
	fmt.Fprintln(stdout, cmd.Long)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintf(stdout, "  %s\n", cmd.Usage)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Commands:")
	for _, sub := range cmd.SubCommands {
		fmt.Fprintf(stdout, "  %-14s %s\n", sub.Name, sub.Short)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Flags:")
	fmt.Fprintln(stdout, "  -h, --help           Show help for a command")
	fmt.Fprintln(stdout, "  -v, --version        Show version information")
	fmt.Fprintln(stdout, "  --verbose            Log gate transitions at debug level")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Examples:")
	fmt.Fprintln(stdout, "  storagegate manifest                     Print the manifest entries")
	fmt.Fprintln(stdout, "  storagegate simulate --sdk 29 --deny     Walk through a denied request")
	fmt.Fprintln(stdout, "  storagegate config                       Show the resolved configuration")
}

func printCommandHelp(cmd *Command) {
	fmt.Fprintln(stdout, cmd.Long)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintf(stdout, "  %s\n", cmd.Usage)
}

// flagValue returns the value following args[i] for flags of the form
// "--name value" or "--name=value".
func flagValue(args []string, i int, name string) (string, int, bool) {
	arg := args[i]
	if v, ok := strings.CutPrefix(arg, name+"="); ok {
		return v, i, true
	}
	if arg == name && i+1 < len(args) {
		return args[i+1], i + 1, true
	}
	return "", i, false
}
