package cmd

import (
	"flag"
	"os"

	"grimm.is/tsim/internal/collect"
	"grimm.is/tsim/internal/facts"
)

// RunCollect captures the local host's (or a namespace's) firewall and
// routing state into a facts file.
func RunCollect(args []string) int {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	router := fs.String("router", "", "Router name for the document (default: hostname)")
	out := fs.String("o", "", "Output file (default: FACTS_DIR/NAME.json)")
	fs.StringVar(out, "output", "", "Output file (long)")
	netnsName := fs.String("netns", "", "Capture inside a named network namespace")
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
	newLogger(cfg, int(verbosity))

	name := *router
	if name == "" {
		name, err = os.Hostname()
		if err != nil {
			Printer.Fprintf(os.Stderr, "hostname: %v\n", err)
			return ExitError
		}
	}

	doc, err := collect.Capture(collect.ExecRunner{}, collect.DefaultRouteLister(), collect.Options{
		Router: name,
		Netns:  *netnsName,
	})
	if err != nil {
		Printer.Fprintf(os.Stderr, "collect: %v\n", err)
		return ExitError
	}

	path := *out
	if path == "" {
		if err := os.MkdirAll(cfg.FactsDir, 0o755); err != nil {
			Printer.Fprintf(os.Stderr, "create facts dir: %v\n", err)
			return ExitError
		}
		path = facts.Path(cfg.FactsDir, name)
	}
	if err := facts.WriteFile(path, doc); err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}

	Printer.Printf("wrote %s (%d chains, %d sets, %d routes)\n",
		path, len(doc.Firewall.Iptables.Filter), len(doc.Firewall.Ipset.Lists), len(doc.Routing.Tables))
	return ExitAllowed
}
