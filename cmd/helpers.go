// Package cmd implements the tsim subcommands. Each Run function parses
// its own flags and returns the process exit code: 0 forwarding allowed,
// 1 forwarding denied, 2 error.
package cmd

import (
	"flag"
	"strconv"

	"grimm.is/tsim/internal/brand"
	"grimm.is/tsim/internal/config"
	"grimm.is/tsim/internal/i18n"
	"grimm.is/tsim/internal/logging"
)

func defaultConfigPath() string { return brand.GetConfigPath() }

// Printer localizes all user-facing output.
var Printer = i18n.NewCLIPrinter()

// Exit codes shared by every subcommand.
const (
	ExitAllowed = 0
	ExitDenied  = 1
	ExitError   = 2
)

// countFlag makes -v repeatable: each occurrence bumps the count.
type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }

func (c *countFlag) Set(string) error {
	*c++
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

// configFlag registers the shared --config flag.
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "Configuration file (default "+defaultConfigPath()+")")
}

// loadConfig resolves the effective configuration: an explicit --config
// path must exist, the default location falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	return config.LoadOrDefault(path, explicit)
}

// newLogger builds the process logger from config plus the -v count:
// one -v forces debug, two adds per-rule tracing at the call sites.
func newLogger(cfg *config.Config, verbosity int) *logging.Logger {
	lc := logging.DefaultConfig()
	switch cfg.Log.Level {
	case "debug":
		lc.Level = logging.LevelDebug
	case "warn":
		lc.Level = logging.LevelWarn
	case "error":
		lc.Level = logging.LevelError
	}
	if verbosity > 0 {
		lc.Level = logging.LevelDebug
	}
	lc.JSON = cfg.Log.Format == "json"

	log := logging.New(lc)
	logging.SetDefault(log)
	return log
}
