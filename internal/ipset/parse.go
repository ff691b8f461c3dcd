package ipset

import (
	"bufio"
	"io"
	"strings"
)

// ParseList reads `ipset list` output: per-set blocks of header lines
// (Name:, Type:, ...) followed by the members after a Members: line, one
// per line until the next blank line or Name: header.
func ParseList(r io.Reader) (*Store, error) {
	st := NewStore()
	var cur *Set
	inMembers := false

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			inMembers = false
		case strings.HasPrefix(trimmed, "Name:"):
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "Name:"))
			cur = st.Create(name, "")
			inMembers = false
		case strings.HasPrefix(trimmed, "Type:"):
			if cur != nil {
				cur.Type = strings.TrimSpace(strings.TrimPrefix(trimmed, "Type:"))
			}
		case strings.HasPrefix(trimmed, "Members:"):
			inMembers = cur != nil
		case strings.Contains(trimmed, ":") && !inMembers:
			// other header lines (Revision:, Header:, References:, ...)
		case inMembers:
			// member lines may carry options (timeout, comment); the
			// member itself is the first field
			fields := strings.Fields(trimmed)
			if len(fields) > 0 {
				cur.Add(fields[0])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return st, nil
}

// ParseSave reads `ipset save` output: "create NAME TYPE header..." and
// "add NAME MEMBER [options...]" lines. Unknown lines are skipped.
func ParseSave(r io.Reader) (*Store, error) {
	st := NewStore()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		switch fields[0] {
		case "create":
			st.Create(fields[1], fields[2])
		case "add":
			s, ok := st.Get(fields[1])
			if !ok {
				s = st.Create(fields[1], "")
			}
			s.Add(fields[2])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return st, nil
}
