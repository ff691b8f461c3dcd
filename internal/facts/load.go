package facts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrFactsUnavailable marks a document whose capture explicitly flagged a
// required section as unavailable.
var ErrFactsUnavailable = errors.New("facts marked unavailable")

// Path returns the facts file for a router inside a facts directory.
func Path(dir, router string) string {
	return filepath.Join(dir, router+".json")
}

// Load decodes a document from a reader.
func Load(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	return &d, nil
}

// LoadFile decodes a document from a file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts %s: %w", path, err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode facts %s: %w", path, err)
	}
	return &d, nil
}

// LoadRouter loads DIR/NAME.json, filling in the router name when the
// document does not carry one.
func LoadRouter(dir, router string) (*Document, error) {
	d, err := LoadFile(Path(dir, router))
	if err != nil {
		return nil, err
	}
	if d.Router == "" {
		d.Router = router
	}
	return d, nil
}

// Routers lists the router names with a facts file in dir, sorted.
func Routers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read facts dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// WriteFile writes the document as indented JSON.
func WriteFile(path string, d *Document) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode facts: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write facts %s: %w", path, err)
	}
	return nil
}
