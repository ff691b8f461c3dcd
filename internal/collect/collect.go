package collect

import (
	"fmt"

	"grimm.is/tsim/internal/facts"
	"grimm.is/tsim/internal/logging"
	"grimm.is/tsim/internal/routing"
)

// RouteLister reads the route table of the environment collection runs in.
type RouteLister interface {
	Routes() ([]routing.Entry, error)
}

// Options selects what to collect.
type Options struct {
	// Router names the resulting document.
	Router string
	// Netns runs the whole capture inside a named network namespace.
	// Requires linux.
	Netns string
}

// Capture builds a facts document from the host's (or namespace's) current
// state. An iptables-save failure is fatal; a missing ipset tool marks the
// ipset section unavailable, which later refuses evaluation rather than
// pretending the router has no sets. routes may be nil, marking the
// routing section unavailable the same way.
func Capture(runner CommandRunner, routes RouteLister, opts Options) (*facts.Document, error) {
	if opts.Netns != "" {
		var doc *facts.Document
		err := inNetns(opts.Netns, func() error {
			var err error
			doc, err = capture(runner, routes, opts.Router)
			return err
		})
		return doc, err
	}
	return capture(runner, routes, opts.Router)
}

func capture(runner CommandRunner, routes RouteLister, router string) (*facts.Document, error) {
	log := logging.WithComponent("collect")

	iptables, err := runner.Output("iptables-save", "-t", "filter")
	if err != nil {
		return nil, fmt.Errorf("iptables-save: %w", err)
	}

	ipset, err := runner.Output("ipset", "save")
	if err != nil {
		log.Warn("ipset capture failed, marking section unavailable", "error", err)
		ipset = nil
	}

	doc, err := facts.FromCaptures(router, string(iptables), string(ipset), "")
	if err != nil {
		return nil, err
	}

	if routes != nil {
		entries, err := routes.Routes()
		if err != nil {
			return nil, fmt.Errorf("list routes: %w", err)
		}
		available := true
		doc.Routing.Available = &available
		doc.Routing.Tables = entries
	}
	return doc, nil
}
