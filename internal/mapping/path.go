package mapping

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Segment flags.
const (
	FlagSortKey       = "sortKey"
	FlagSortKeyUnique = "sortKeyUnique"
	FlagPrimaryKey    = "primaryKey"
	FlagFilter        = "filter"
	FlagExpression    = "expression"
)

const (
	defaultSortKey    = "id"
	defaultPrimaryKey = "id"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// segment is one parsed element of a source path.
//
//	[src=tgt]name{flag=value}...   table segment (join condition)
//	[CONNECTOR]name                connector column
//	name{expression=...}           expression column
//	'literal'                      constant column
type segment struct {
	Raw        string
	Name       string
	JoinSource string
	JoinTarget string
	Connector  string
	Constant   string
	IsConstant bool
	Flags      map[string]string
}

// IsJoin reports whether the segment carries a join condition.
func (s segment) IsJoin() bool {
	return s.JoinSource != ""
}

func (s segment) flag(name, def string) string {
	if v, ok := s.Flags[name]; ok {
		return v
	}
	return def
}

func (s segment) sortKey() string    { return s.flag(FlagSortKey, defaultSortKey) }
func (s segment) primaryKey() string { return s.flag(FlagPrimaryKey, defaultPrimaryKey) }

func (s segment) sortKeyUnique() (bool, error) {
	v := s.flag(FlagSortKeyUnique, "true")
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("segment %q: sortKeyUnique must be true or false, got %q", s.Raw, v)
	}
	return b, nil
}

// parsePath splits a source path into segments. Slashes inside {}, [] and
// quotes do not split, so flag values may contain JSON.
func parsePath(path string) ([]segment, error) {
	raws, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	segs := make([]segment, len(raws))
	for i, raw := range raws {
		s, err := parseSegment(raw)
		if err != nil {
			return nil, err
		}
		segs[i] = s
	}
	return segs, nil
}

func splitPath(path string) ([]string, error) {
	p := strings.TrimPrefix(strings.TrimSpace(path), "/")
	if p == "" {
		return nil, fmt.Errorf("empty source path")
	}

	var (
		parts  []string
		start  int
		depth  int
		quoted bool
	)
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '\'' && depth == 0:
			quoted = !quoted
		case quoted:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("path %q: unbalanced %q at offset %d", path, c, i)
			}
		case c == '/' && depth == 0:
			parts = append(parts, p[start:i])
			start = i + 1
		}
	}
	if depth != 0 || quoted {
		return nil, fmt.Errorf("path %q: unterminated bracket or quote", path)
	}
	parts = append(parts, p[start:])

	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("path %q: empty segment", path)
		}
	}
	return parts, nil
}

func parseSegment(raw string) (segment, error) {
	s := segment{Raw: raw}

	if strings.HasPrefix(raw, "'") {
		if len(raw) < 2 || !strings.HasSuffix(raw, "'") {
			return s, fmt.Errorf("segment %q: unterminated constant", raw)
		}
		s.IsConstant = true
		s.Constant = strings.ReplaceAll(raw[1:len(raw)-1], "''", "'")
		return s, nil
	}

	rest := raw
	if strings.HasPrefix(rest, "[") {
		end := matching(rest, 0)
		if end < 0 {
			return s, fmt.Errorf("segment %q: unterminated '['", raw)
		}
		inner := rest[1:end]
		if src, tgt, ok := strings.Cut(inner, "="); ok {
			if !identPattern.MatchString(src) || !identPattern.MatchString(tgt) {
				return s, fmt.Errorf("segment %q: invalid join condition %q", raw, inner)
			}
			s.JoinSource, s.JoinTarget = src, tgt
		} else {
			if !identPattern.MatchString(inner) {
				return s, fmt.Errorf("segment %q: invalid connector %q", raw, inner)
			}
			s.Connector = strings.ToUpper(inner)
		}
		rest = rest[end+1:]
	}

	nameEnd := strings.IndexByte(rest, '{')
	if nameEnd < 0 {
		nameEnd = len(rest)
	}
	s.Name = rest[:nameEnd]
	if !identPattern.MatchString(s.Name) {
		return s, fmt.Errorf("segment %q: invalid name %q", raw, s.Name)
	}
	rest = rest[nameEnd:]

	for rest != "" {
		if rest[0] != '{' {
			return s, fmt.Errorf("segment %q: unexpected %q after name", raw, rest)
		}
		end := matching(rest, 0)
		if end < 0 {
			return s, fmt.Errorf("segment %q: unterminated '{'", raw)
		}
		key, value, ok := strings.Cut(rest[1:end], "=")
		if !ok || key == "" {
			return s, fmt.Errorf("segment %q: flag %q is not key=value", raw, rest[:end+1])
		}
		if s.Flags == nil {
			s.Flags = make(map[string]string)
		}
		s.Flags[key] = value
		rest = rest[end+1:]
	}

	return s, nil
}

// matching returns the index of the bracket closing the one at open, or -1.
func matching(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// joinSegments renders segments back into a normalized source path.
func joinSegments(segs []segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		b.WriteString(s.Raw)
	}
	return b.String()
}
