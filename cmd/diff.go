package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/tsim/internal/facts"
)

// RunDiff compares two facts captures: either two file arguments, or one
// --router against two facts directories. Both sides are rendered in the
// canonical text form before diffing, so ordering noise in the captures
// does not show up as change. Exit 0 identical, 1 different, 2 error.
func RunDiff(args []string) int {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	router := fs.String("router", "", "Diff this router's facts between two directories")
	if err := fs.Parse(args); err != nil {
		return ExitError
	}

	var pathA, pathB string
	rest := fs.Args()
	switch {
	case *router != "" && len(rest) == 2:
		pathA = facts.Path(rest[0], *router)
		pathB = facts.Path(rest[1], *router)
	case *router == "" && len(rest) == 2:
		pathA, pathB = rest[0], rest[1]
	default:
		Printer.Fprintf(os.Stderr, "usage: diff A.json B.json | diff --router NAME DIR1 DIR2\n")
		return ExitError
	}

	textA, err := renderFile(pathA)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	textB, err := renderFile(pathB)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}

	if textA == textB {
		Printer.Println("No differences.")
		return ExitAllowed
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(textA),
		B:        difflib.SplitLines(textB),
		FromFile: pathA,
		ToFile:   pathB,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		Printer.Fprintf(os.Stderr, "%v\n", err)
		return ExitError
	}
	fmt.Print(text)
	return ExitDenied
}

func renderFile(path string) (string, error) {
	doc, err := facts.LoadFile(path)
	if err != nil {
		return "", err
	}
	return facts.Render(doc), nil
}
