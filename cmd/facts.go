package cmd

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/tsim/internal/facts"
	"grimm.is/tsim/internal/logging"
)

// RunFacts manages facts documents: validate constructs an engine from
// every (or one) facts file, convert builds a document from raw capture
// text, show prints the canonical rendering.
func RunFacts(args []string) int {
	if len(args) == 0 {
		Printer.Fprintf(os.Stderr, "usage: facts <validate|convert|show> [options]\n")
		return ExitError
	}
	switch args[0] {
	case "validate":
		return runFactsValidate(args[1:])
	case "convert":
		return runFactsConvert(args[1:])
	case "show":
		return runFactsShow(args[1:])
	default:
		Printer.Fprintf(os.Stderr, "unknown facts subcommand %q (validate, convert, show)\n", args[0])
		return ExitError
	}
}

func runFactsValidate(args []string) int {
	fs := flag.NewFlagSet("facts validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	router := fs.String("router", "", "Validate only this router")
	factsDir := fs.String("tsim-facts", "", "Facts directory")
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	if *factsDir != "" {
		cfg.FactsDir = *factsDir
	}

	routers := []string{*router}
	if *router == "" {
		routers, err = facts.Routers(cfg.FactsDir)
		if err != nil {
			Printer.Fprintf(os.Stderr, "%v\n", err)
			return ExitError
		}
		if len(routers) == 0 {
			Printer.Fprintf(os.Stderr, "no facts files in %s\n", cfg.FactsDir)
			return ExitError
		}
	}

	code := ExitAllowed
	log := logging.Default()
	for _, name := range routers {
		if err := validateRouter(cfg.FactsPath(name), name, log); err != nil {
			Printer.Printf("%s: %v\n", name, err)
			code = ExitError
			continue
		}
		Printer.Printf("%s: ok\n", name)
	}
	return code
}

func validateRouter(path, name string, log *logging.Logger) error {
	doc, err := facts.LoadFile(path)
	if err != nil {
		return err
	}
	if doc.Router == "" {
		doc.Router = name
	}
	_, err = doc.Engine(log)
	return err
}

func runFactsConvert(args []string) int {
	fs := flag.NewFlagSet("facts convert", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	router := fs.String("router", "", "Router name for the document")
	iptablesFile := fs.String("iptables", "", "iptables-save or iptables -L capture file")
	ipsetFile := fs.String("ipset", "", "ipset save or ipset list capture file")
	routesFile := fs.String("routes", "", "ip route show capture file")
	out := fs.String("o", "", "Output facts file")
	fs.StringVar(out, "output", "", "Output facts file (long)")
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	if *router == "" || *out == "" {
		Printer.Fprintf(os.Stderr, "--router and -o are required\n")
		return ExitError
	}

	read := func(path string) (string, bool) {
		if path == "" {
			return "", true
		}
		data, err := os.ReadFile(path)
		if err != nil {
			Printer.Fprintf(os.Stderr, "%v\n", err)
			return "", false
		}
		return string(data), true
	}

	iptables, ok := read(*iptablesFile)
	if !ok {
		return ExitError
	}
	ipset, ok := read(*ipsetFile)
	if !ok {
		return ExitError
	}
	routes, ok := read(*routesFile)
	if !ok {
		return ExitError
	}

	doc, err := facts.FromCaptures(*router, iptables, ipset, routes)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	if err := facts.WriteFile(*out, doc); err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	Printer.Printf("wrote %s\n", *out)
	return ExitAllowed
}

func runFactsShow(args []string) int {
	fs := flag.NewFlagSet("facts show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	router := fs.String("router", "", "Router name")
	factsDir := fs.String("tsim-facts", "", "Facts directory")
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	if *factsDir != "" {
		cfg.FactsDir = *factsDir
	}

	path := ""
	switch {
	case *router != "":
		path = cfg.FactsPath(*router)
	case len(fs.Args()) == 1:
		path = fs.Arg(0)
	default:
		Printer.Fprintf(os.Stderr, "usage: facts show --router NAME | facts show FILE.json\n")
		return ExitError
	}

	text, err := renderFile(path)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	fmt.Print(text)
	return ExitAllowed
}
