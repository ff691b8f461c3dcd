// Package collect produces a facts document for the local host or a named
// network namespace: filter-table rules via iptables-save, sets via ipset
// save, routes via netlink. The captured text goes through the same
// parsers evaluation uses, so a collected document and a replayed one
// cannot drift apart.
package collect

import (
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts command execution so collection can be tested
// without the real tools installed.
type CommandRunner interface {
	Run(name string, args ...string) error
	Output(name string, args ...string) ([]byte, error)
	RunInput(input string, name string, args ...string) error
}

// ExecRunner runs commands on the host.
type ExecRunner struct{}

// Run executes a command without capturing output.
func (ExecRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, string(out))
	}
	return nil
}

// Output executes a command and returns its output.
func (ExecRunner) Output(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// RunInput executes a command with input via stdin.
func (ExecRunner) RunInput(input string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(input)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, string(out))
	}
	return nil
}
