// Package index implements core.Index over three backends: an in-process
// map, a SQLite table of JSON documents, and a Solr server.
//
// All backends understand the same small query language:
//
//	*:*                                 every document
//	field:"value"                       exact match on a field
//	"text"                              case-insensitive substring of full_text
//	dataset_slug:"a" AND "text"         conjunction of clauses
//
// Sort specifications are comma-separated "field asc|desc" pairs.
package index

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// Clause is one term of a query. An empty Field matches full_text.
type Clause struct {
	Field string
	Value string
}

// Query is a parsed conjunction of clauses. A query with no clauses
// matches everything.
type Query struct {
	Clauses []Clause
}

// ParseQuery parses the query language described in the package doc.
func ParseQuery(q string) (Query, error) {
	q = strings.TrimSpace(q)
	if q == "" || q == "*:*" {
		return Query{}, nil
	}

	p := &parser{s: q}
	var out Query
	for {
		c, err := p.clause()
		if err != nil {
			return Query{}, fmt.Errorf("parse query %q: %w", q, err)
		}
		out.Clauses = append(out.Clauses, c)

		p.skipSpace()
		if p.done() {
			return out, nil
		}
		if !p.consume("AND") {
			return Query{}, fmt.Errorf("parse query %q: expected AND at offset %d", q, p.pos)
		}
		p.skipSpace()
	}
}

type parser struct {
	s   string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.s) }

func (p *parser) skipSpace() {
	for p.pos < len(p.s) && p.s[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) consume(word string) bool {
	if strings.HasPrefix(p.s[p.pos:], word) {
		p.pos += len(word)
		return true
	}
	return false
}

func (p *parser) clause() (Clause, error) {
	if p.done() {
		return Clause{}, fmt.Errorf("missing clause at offset %d", p.pos)
	}
	if p.s[p.pos] == '"' {
		v, err := p.quoted()
		return Clause{Value: v}, err
	}

	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != ':' && p.s[p.pos] != ' ' {
		p.pos++
	}
	if p.done() || p.s[p.pos] != ':' {
		return Clause{}, fmt.Errorf("expected field:value at offset %d", start)
	}
	field := p.s[start:p.pos]
	p.pos++

	if !p.done() && p.s[p.pos] == '"' {
		v, err := p.quoted()
		return Clause{Field: field, Value: v}, err
	}
	vstart := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != ' ' {
		p.pos++
	}
	if p.pos == vstart {
		return Clause{}, fmt.Errorf("empty value for field %s", field)
	}
	return Clause{Field: field, Value: p.s[vstart:p.pos]}, nil
}

func (p *parser) quoted() (string, error) {
	start := p.pos
	p.pos++ // opening quote

	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch c {
		case '\\':
			if p.pos+1 >= len(p.s) {
				return "", fmt.Errorf("dangling escape at offset %d", p.pos)
			}
			b.WriteByte(p.s[p.pos+1])
			p.pos += 2
		case '"':
			p.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated quote at offset %d", start)
}

// Match reports whether doc satisfies every clause.
func (q Query) Match(doc map[string]any) bool {
	for _, c := range q.Clauses {
		if c.Field == "" {
			text, _ := doc[core.FieldFullText].(string)
			if !strings.Contains(strings.ToLower(text), strings.ToLower(c.Value)) {
				return false
			}
			continue
		}
		v, ok := doc[c.Field]
		if !ok || stringValue(v) != c.Value {
			return false
		}
	}
	return true
}

// SortKey orders documents by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// ParseSort parses "field asc, other desc". The direction defaults to asc.
func ParseSort(s string) ([]SortKey, error) {
	var keys []SortKey
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		switch len(fields) {
		case 0:
			continue
		case 1, 2:
		default:
			return nil, fmt.Errorf("invalid sort %q", part)
		}

		k := SortKey{Field: fields[0]}
		if !validField(k.Field) {
			return nil, fmt.Errorf("invalid sort field %q", k.Field)
		}
		if len(fields) == 2 {
			switch strings.ToLower(fields[1]) {
			case "asc":
			case "desc":
				k.Desc = true
			default:
				return nil, fmt.Errorf("invalid sort direction %q", fields[1])
			}
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Less compares two documents by keys. Missing values sort first.
func Less(keys []SortKey, a, b map[string]any) bool {
	for _, k := range keys {
		c := compareValues(a[k.Field], b[k.Field])
		if c == 0 {
			continue
		}
		if k.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	af, aNum := numberValue(a)
	bf, bNum := numberValue(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(stringValue(a), stringValue(b))
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// validField restricts field names to what the codec produces, so they can
// be embedded in SQL paths and Solr parameters.
func validField(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
