package main

import (
	"os"
	"strings"

	"grimm.is/tsim/cmd"
	"grimm.is/tsim/internal/brand"
	"grimm.is/tsim/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	// Bare flags mean query: `tsim -s 10.0.0.5 -d 1.1.1.1 ...` works
	// without naming the subcommand.
	if strings.HasPrefix(os.Args[1], "-") {
		switch os.Args[1] {
		case "-h", "--help":
			printUsage()
			os.Exit(0)
		case "-version", "--version":
			printVersion()
			os.Exit(0)
		}
		os.Exit(cmd.RunQuery(os.Args[1:]))
	}

	switch os.Args[1] {
	case "query":
		os.Exit(cmd.RunQuery(os.Args[2:]))

	case "collect":
		os.Exit(cmd.RunCollect(os.Args[2:]))

	case "diff":
		os.Exit(cmd.RunDiff(os.Args[2:]))

	case "history":
		os.Exit(cmd.RunHistory(os.Args[2:]))

	case "console":
		os.Exit(cmd.RunConsole(os.Args[2:]))

	case "facts":
		os.Exit(cmd.RunFacts(os.Args[2:]))

	case "config":
		os.Exit(cmd.RunConfigCmd(os.Args[2:]))

	case "version":
		printVersion()

	case "help":
		printUsage()

	default:
		printer.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printVersion() {
	printer.Printf("%s version %s\n", brand.Name, brand.Version)
	printer.Printf("Build: %s\n", brand.BuildTime)
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]
  %s -s SRC -d DST [options]        # shorthand for "query"

Commands:
  query     Evaluate a packet against a router's FORWARD path
            Options: -s/-source, -sp/-source-port, -d/-dest, -dp/-dest-port,
                     -p/-protocol, -state, --router, --all-routers,
                     --tsim-facts <dir>, --format text|json|yaml, --trace,
                     --no-history, --metrics, -v
  collect   Capture this host's firewall and routing state into a facts file
            Options: --router <name>, -o/--output <file>, --netns <name>
  diff      Compare two facts captures
            Usage: diff A.json B.json | diff --router NAME DIR1 DIR2
  history   Show or clear recorded queries
            Subcommands: [list], clear; Options: --limit, --router
  console   Interactive query console
            Options: --tsim-facts <dir>
  facts     Manage facts documents
            Subcommands: validate, convert, show
  config    Manage the %s configuration file
            Subcommands: init, show, validate
  version   Print version information

Exit codes: 0 forwarding allowed, 1 forwarding denied, 2 error.

Examples:
  %s -s 10.1.0.5 -d 203.0.113.9 -p tcp -dp 443 --router edge1
  %s query -s 10.1.0.0/24 -d 8.8.8.8 --all-routers --format json
  %s collect --router edge1
  %s diff --router edge1 ./before ./after

For configuration see %s.
`,
		brand.Name, brand.Description,
		brand.LowerName, brand.LowerName,
		brand.LowerName,
		brand.LowerName, brand.LowerName, brand.LowerName, brand.LowerName,
		brand.GetConfigPath())
}
