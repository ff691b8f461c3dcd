package cmd

import (
	"flag"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"grimm.is/tsim/internal/tui"
)

// RunConsole starts the interactive query console against a facts
// directory.
func RunConsole(args []string) int {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	factsDir := fs.String("tsim-facts", "", "Facts directory")
	configPath := configFlag(fs)
	var verbosity countFlag
	fs.Var(&verbosity, "v", "Increase diagnostic verbosity (repeatable)")

	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	log := newLogger(cfg, int(verbosity))
	if *factsDir != "" {
		cfg.FactsDir = *factsDir
	}

	backend := tui.NewFactsBackend(cfg.FactsDir, log)
	if _, err := tea.NewProgram(tui.NewModel(backend), tea.WithAltScreen()).Run(); err != nil {
		Printer.Fprintf(os.Stderr, "console: %v\n", err)
		return ExitError
	}
	return ExitAllowed
}
