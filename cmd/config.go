package cmd

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"grimm.is/tsim/internal/config"
)

// RunConfigCmd inspects and manages the tool configuration file.
func RunConfigCmd(args []string) int {
	if len(args) == 0 {
		Printer.Fprintf(os.Stderr, "usage: config <init|show|validate> [options]\n")
		return ExitError
	}
	sub := args[0]

	fs := flag.NewFlagSet("config "+sub, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := configFlag(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return ExitError
	}

	path := *configPath
	if path == "" {
		path = defaultConfigPath()
	}

	switch sub {
	case "init":
		if err := config.WriteDefault(path); err != nil {
			Printer.Fprintf(os.Stderr, "%v\n", err)
			return ExitError
		}
		Printer.Printf("wrote %s\n", path)
		return ExitAllowed

	case "show":
		cfg, err := config.Load(path)
		if errors.Is(err, config.ErrNotFound) {
			cfg = config.Default()
			err = nil
		}
		if err != nil {
			Printer.Fprintf(os.Stderr, "%v\n", err)
			return ExitError
		}
		fmt.Print(string(config.Render(cfg)))
		return ExitAllowed

	case "validate":
		cfg, err := config.Load(path)
		if err != nil {
			Printer.Fprintf(os.Stderr, "%v\n", err)
			return ExitError
		}
		if err := cfg.Validate(); err != nil {
			Printer.Fprintf(os.Stderr, "%v\n", err)
			return ExitError
		}
		Printer.Printf("%s: ok\n", path)
		return ExitAllowed

	default:
		Printer.Fprintf(os.Stderr, "unknown config subcommand %q (init, show, validate)\n", sub)
		return ExitError
	}
}
