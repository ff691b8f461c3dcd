package cmd

import (
	"flag"
	"os"
	"text/tabwriter"
	"time"

	"grimm.is/tsim/internal/history"
)

// RunHistory lists or clears the recorded query log.
func RunHistory(args []string) int {
	sub := "list"
	if len(args) > 0 && args[0] == "clear" {
		sub = "clear"
		args = args[1:]
	}

	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 20, "Maximum records to show")
	router := fs.String("router", "", "Only show this router's queries")
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	if cfg.History == nil || cfg.History.Path == "" {
		Printer.Fprintf(os.Stderr, "no history store configured\n")
		return ExitError
	}

	store, err := history.Open(cfg.History.Path, cfg.History.Limit)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	defer store.Close()

	if sub == "clear" {
		if err := store.Clear(); err != nil {
			Printer.Fprintf(os.Stderr, "%v\n", err)
			return ExitError
		}
		Printer.Println("History cleared.")
		return ExitAllowed
	}

	records, err := store.List(*limit, *router)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	if len(records) == 0 {
		Printer.Println("No recorded queries.")
		return ExitAllowed
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	Printer.Fprintf(w, "WHEN\tROUTER\tQUERY\tVERDICT\n")
	for _, r := range records {
		verdict := "DENIED"
		if r.Allowed {
			verdict = "ALLOWED"
		}
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.At.Local().Format(time.DateTime), r.Router, r.Query.String(), verdict)
	}
	w.Flush()
	return ExitAllowed
}
