package engine

import (
	"regexp"
	"strings"
)

// validSetName mirrors allowed ipset names; anything else found after
// match-set is treated as opaque rather than a set reference.
var validSetName = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

var commentSpan = regexp.MustCompile(`/\*.*?\*/`)

// stripComments removes /* ... */ spans from a rule line and returns the
// cleaned line plus the first comment body, if any.
func stripComments(s string) (string, string) {
	comment := ""
	if m := commentSpan.FindString(s); m != "" {
		comment = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(m, "/*"), "*/"))
	}
	return commentSpan.ReplaceAllString(s, " "), comment
}

// ParseRuleText parses one rule in either accepted textual form, picking
// the form by the position of the "--" options column: second token means a
// plain list row, third means a list row with its target still attached.
// Everything else is treated as iptables-save flag syntax.
func ParseRuleText(text string, line int) Rule {
	clean, comment := stripComments(text)
	tokens := strings.Fields(clean)

	var r Rule
	switch {
	case len(tokens) >= 2 && tokens[1] == "--":
		r = ParseListRule(text, line)
	case len(tokens) >= 3 && tokens[2] == "--":
		r = ParseListRule(text, line)
	default:
		r = ParseSaveRule(text, line)
	}
	if r.Comment == "" {
		r.Comment = comment
	}
	return r
}

// ParseListRule parses an `iptables -L -v` style row:
//
//	[target] protocol -- inIface outIface source destination [extensions...]
//
// A leading "-f" marks the fragments flag. Rows too short to recover the
// address fields are kept with the parse-error marker and never match.
func ParseListRule(text string, line int) Rule {
	clean, comment := stripComments(text)
	tokens := strings.Fields(clean)

	r := Rule{Line: line, Raw: strings.TrimSpace(text), Comment: comment}

	i := 0
	if i < len(tokens) && tokens[i] == "-f" {
		r.Criteria.Fragments = true
		i++
	}
	// A target is present when the options column sits one token further
	// out than the plain layout puts it.
	if len(tokens) > i+2 && tokens[i+1] != "--" && tokens[i+2] == "--" {
		r.Target = tokens[i]
		i++
	}

	rest := tokens[i:]
	if len(rest) < 6 {
		r.ParseErr = true
		return r
	}

	r.Criteria.Protocol = rest[0]
	switch rest[1] {
	case "-f":
		r.Criteria.Fragments = true
	case "--":
		// options column, nothing to keep
	default:
		r.Criteria.Extensions = append(r.Criteria.Extensions, rest[1])
	}
	r.Criteria.InInterface = rest[2]
	r.Criteria.OutInterface = rest[3]
	r.Criteria.Source = rest[4]
	r.Criteria.Destination = rest[5]

	parseExtensions(rest[6:], &r)
	r.Criteria.Normalize()
	return r
}

// parseExtensions walks the free-form tail of a list row, recovering the
// clauses the engine understands and keeping everything else verbatim.
func parseExtensions(tokens []string, r *Rule) {
	c := &r.Criteria
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok == "match-set" && i+2 < len(tokens) && validSetName.MatchString(tokens[i+1]):
			c.MatchSets = append(c.MatchSets, SetMatch{
				Name:       tokens[i+1],
				Directions: strings.Split(tokens[i+2], ","),
			})
			i += 2
		case tok == "multiport" && i+2 < len(tokens):
			switch tokens[i+1] {
			case "dports":
				if c.DestPorts == "" {
					c.DestPorts = tokens[i+2]
					i += 2
					continue
				}
			case "sports":
				if c.SourcePorts == "" {
					c.SourcePorts = tokens[i+2]
					i += 2
					continue
				}
			}
			// "ports" matches either direction; the criteria cannot
			// express that, so the clause stays opaque.
			c.Extensions = append(c.Extensions, tok)
		case strings.HasPrefix(tok, "dpt:"):
			c.DestPorts = strings.TrimPrefix(tok, "dpt:")
		case strings.HasPrefix(tok, "dpts:"):
			c.DestPorts = strings.TrimPrefix(tok, "dpts:")
		case strings.HasPrefix(tok, "spt:"):
			c.SourcePorts = strings.TrimPrefix(tok, "spt:")
		case strings.HasPrefix(tok, "spts:"):
			c.SourcePorts = strings.TrimPrefix(tok, "spts:")
		case (tok == "state" || tok == "ctstate") && i+1 < len(tokens) && looksLikeStates(tokens[i+1]):
			c.States = append(c.States, strings.Split(tokens[i+1], ",")...)
			i++
		case tok == "source" && i+3 < len(tokens) && tokens[i+1] == "IP" && tokens[i+2] == "range":
			c.Source = tokens[i+3]
			i += 3
		case tok == "destination" && i+3 < len(tokens) && tokens[i+1] == "IP" && tokens[i+2] == "range":
			c.Destination = tokens[i+3]
			i += 3
		case c.Protocol != "" && strings.EqualFold(tok, c.Protocol):
			// protocol module echo, as in "tcp dpt:22"; carries nothing
		default:
			c.Extensions = append(c.Extensions, tok)
		}
	}
}

func looksLikeStates(s string) bool {
	for _, part := range strings.Split(s, ",") {
		switch strings.ToUpper(part) {
		case "NEW", "ESTABLISHED", "RELATED", "INVALID", "UNTRACKED", "SNAT", "DNAT":
		default:
			return false
		}
	}
	return s != ""
}

// ParseSaveRule parses an iptables-save rule body. A leading "-A CHAIN" is
// consumed and discarded; callers grouping rules by chain read it before
// handing the line over. Negated clauses and goto jumps are kept opaque
// rather than half-applied.
func ParseSaveRule(text string, line int) Rule {
	clean, comment := stripComments(text)
	tokens := strings.Fields(clean)

	r := Rule{Line: line, Raw: strings.TrimSpace(text), Comment: comment}
	c := &r.Criteria

	i := 0
	recognized := false
	if len(tokens) >= 2 && tokens[0] == "-A" {
		i = 2
		recognized = true
	}

	// need returns the next n tokens after position i, or marks the rule
	// broken when the line ends mid-clause.
	need := func(n int) []string {
		if i+n >= len(tokens) {
			r.ParseErr = true
			return nil
		}
		vals := tokens[i+1 : i+1+n]
		i += n
		return vals
	}

	for ; i < len(tokens) && !r.ParseErr; i++ {
		switch tok := tokens[i]; tok {
		case "-i":
			if v := need(1); v != nil {
				c.InInterface = v[0]
			}
		case "-o":
			if v := need(1); v != nil {
				c.OutInterface = v[0]
			}
		case "-p":
			if v := need(1); v != nil {
				c.Protocol = v[0]
			}
		case "-s":
			if v := need(1); v != nil {
				c.Source = v[0]
			}
		case "-d":
			if v := need(1); v != nil {
				c.Destination = v[0]
			}
		case "--dport", "--dports":
			if v := need(1); v != nil {
				c.DestPorts = v[0]
			}
		case "--sport", "--sports":
			if v := need(1); v != nil {
				c.SourcePorts = v[0]
			}
		case "-j":
			if v := need(1); v != nil {
				r.Target = v[0]
			}
		case "-g":
			// goto has different unwind semantics than jump; keep opaque
			if v := need(1); v != nil {
				c.Extensions = append(c.Extensions, tok, v[0])
			}
		case "-f":
			c.Fragments = true
		case "!":
			// negation is not modeled; applying the positive form would
			// invert the rule's meaning, so the clause stays opaque
			c.Extensions = append(c.Extensions, tok)
			if i+1 < len(tokens) {
				c.Extensions = append(c.Extensions, tokens[i+1])
				if strings.HasPrefix(tokens[i+1], "-") && i+2 < len(tokens) && !strings.HasPrefix(tokens[i+2], "-") {
					c.Extensions = append(c.Extensions, tokens[i+2])
					i++
				}
				i++
			}
		case "-m":
			v := need(1)
			if v == nil {
				break
			}
			i = parseSaveModule(tokens, i, v[0], &r)
		default:
			c.Extensions = append(c.Extensions, tok)
			continue
		}
		recognized = true
	}

	// Save-form text shows at least one flag. Input that yields no flag
	// and no target is not a rule; it is kept with the parse-error marker
	// so evaluation skips it without testing criteria.
	if !recognized && r.Target == "" {
		r.ParseErr = true
	}

	c.Normalize()
	return r
}

// parseSaveModule consumes the flags of one "-m MODULE" block starting just
// after the module name, returning the index of the last consumed token.
func parseSaveModule(tokens []string, i int, module string, r *Rule) int {
	c := &r.Criteria
	switch module {
	case "state":
		if i+2 < len(tokens) && tokens[i+1] == "--state" {
			c.States = append(c.States, strings.Split(tokens[i+2], ",")...)
			return i + 2
		}
	case "conntrack":
		if i+2 < len(tokens) && tokens[i+1] == "--ctstate" {
			c.States = append(c.States, strings.Split(tokens[i+2], ",")...)
			return i + 2
		}
	case "set":
		if i+3 < len(tokens) && tokens[i+1] == "--match-set" && validSetName.MatchString(tokens[i+2]) {
			c.MatchSets = append(c.MatchSets, SetMatch{
				Name:       tokens[i+2],
				Directions: strings.Split(tokens[i+3], ","),
			})
			return i + 3
		}
	case "multiport":
		if i+2 < len(tokens) {
			switch tokens[i+1] {
			case "--dports":
				c.DestPorts = tokens[i+2]
				return i + 2
			case "--sports":
				c.SourcePorts = tokens[i+2]
				return i + 2
			}
		}
	case "comment":
		if i+2 < len(tokens) && tokens[i+1] == "--comment" {
			text, last := consumeQuoted(tokens, i+2)
			r.Comment = text
			return last
		}
	case "tcp", "udp", "sctp":
		// port flags of the protocol modules are handled by the main loop
		return i
	}

	// Unrecognized module (limit, recent, hashlimit, connlimit, ...):
	// keep its flag/value pairs verbatim until the next module or jump.
	c.Extensions = append(c.Extensions, module)
	j := i + 1
	for j < len(tokens) {
		if tokens[j] == "-m" || tokens[j] == "-j" || tokens[j] == "-g" {
			break
		}
		c.Extensions = append(c.Extensions, tokens[j])
		j++
	}
	return j - 1
}

// consumeQuoted joins tokens forming one possibly-quoted argument and
// returns the text plus the index of its last token.
func consumeQuoted(tokens []string, i int) (string, int) {
	tok := tokens[i]
	if !strings.HasPrefix(tok, `"`) {
		return tok, i
	}
	parts := []string{strings.TrimPrefix(tok, `"`)}
	if strings.HasSuffix(tok, `"`) && len(tok) > 1 {
		return strings.TrimSuffix(parts[0], `"`), i
	}
	for j := i + 1; j < len(tokens); j++ {
		if strings.HasSuffix(tokens[j], `"`) {
			parts = append(parts, strings.TrimSuffix(tokens[j], `"`))
			return strings.Join(parts, " "), j
		}
		parts = append(parts, tokens[j])
	}
	return strings.Join(parts, " "), len(tokens) - 1
}
