// Package filter implements the SQL-like WHERE clause language described
// in spec.md §4.7: a small expression grammar — including parenthesized
// grouping that overrides the default AND-tighter-than-OR precedence —
// compiled once at Compile time into a predicate over a
// Context, so repeated evaluation against the live message stream never
// re-parses or re-compiles a regex per message.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/topic"
)

// Op is a WHERE clause comparison operator.
type Op string

const (
	OpEq      Op = "="
	OpNeq     Op = "!="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLike    Op = "like"
	OpNotLike Op = "not like"
	OpIn      Op = "in"
)

// Clause is one compiled WHERE predicate, carrying both its source text
// and its compiled form (spec.md §3 Context/Filter invariant).
// OpenParens/CloseParens record how many '(' immediately precede and ')'
// immediately follow this clause in the source text, so a flat []Clause
// can still represent parenthesized grouping without a separate tree type.
type Clause struct {
	Field       string
	Op          Op
	Value       any
	Values      []any // populated for OpIn
	Connector   string // "AND", "OR", or "" for the first clause
	Source      string
	OpenParens  int
	CloseParens int

	like *regexp.Regexp
}

// Filter is an ordered, compiled list of Clauses, evaluated with standard
// SQL precedence (AND binds tighter than OR; parentheses recorded via
// Clause.OpenParens/CloseParens override that precedence).
type Filter struct {
	Name    string
	Clauses []Clause
}

// Compile parses a WHERE expression (the leading "WHERE" keyword is
// optional) into a Filter. LIKE patterns are compiled to a regexp here,
// once, so Match never recompiles one.
func Compile(name, expr string) (*Filter, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	clauses, err := p.parseClauses()
	if err != nil {
		return nil, err
	}
	for i := range clauses {
		if clauses[i].Op == OpLike || clauses[i].Op == OpNotLike {
			pattern, ok := clauses[i].Value.(string)
			if !ok {
				return nil, &mqttpulse.ParseError{Pos: p.pos, Msg: "like requires a string literal"}
			}
			re, err := likeToRegexp(pattern)
			if err != nil {
				return nil, &mqttpulse.ParseError{Pos: p.pos, Msg: err.Error()}
			}
			clauses[i].like = re
		}
	}
	return &Filter{Name: name, Clauses: clauses}, nil
}

// ConvertLegacy rewrites the legacy whitespace-separated "field:pattern"
// shorthand (spec.md §6, e.g. "topic:sensors/# qos:1") into the WHERE
// grammar Compile accepts, preserving backward compatibility with presets
// saved before the SQL-like grammar existed. Each token becomes one
// AND'd clause: "qos:" compares with "=" (numeric/boolean equality),
// every other field compares with "like" (pattern matching, e.g. "#"/"+"
// topic wildcards carried through as LIKE text).
func ConvertLegacy(shorthand string) string {
	fields := strings.Fields(shorthand)
	clauses := make([]string, 0, len(fields))
	for _, tok := range fields {
		kv := strings.SplitN(tok, ":", 2)
		if len(kv) != 2 {
			continue
		}
		field := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if field == "" || val == "" {
			continue
		}
		if strings.EqualFold(field, "qos") {
			clauses = append(clauses, fmt.Sprintf("%s = %s", field, quoteIfNeeded(val)))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s like '%s'", field, strings.ReplaceAll(val, "'", "''")))
	}
	return strings.Join(clauses, " AND ")
}

func quoteIfNeeded(val string) string {
	if _, err := strconv.ParseFloat(val, 64); err == nil {
		return val
	}
	if val == "true" || val == "false" {
		return val
	}
	return "'" + strings.ReplaceAll(val, "'", "''") + "'"
}

// matchFrame tracks one level of parenthesized nesting while Match walks
// the flattened clause list: groupResult is the running AND-chain for the
// current level, overall accumulates completed OR-branches of it.
type matchFrame struct {
	overall     bool
	groupResult bool
}

// Match evaluates the compiled clauses against ctx with AND binding
// tighter than OR, and explicit parenthesized groups (Clause.OpenParens/
// CloseParens) overriding that precedence — the flat clause list is walked
// with a small stack standing in for the parse tree's nesting.
func (f *Filter) Match(ctx Context) bool {
	if len(f.Clauses) == 0 {
		return true
	}
	stack := []matchFrame{{groupResult: true}}
	for i, c := range f.Clauses {
		top := &stack[len(stack)-1]
		if i > 0 && c.Connector == "OR" {
			top.overall = top.overall || top.groupResult
			top.groupResult = true
		}
		for k := 0; k < c.OpenParens; k++ {
			stack = append(stack, matchFrame{groupResult: true})
		}
		top = &stack[len(stack)-1]
		top.groupResult = top.groupResult && matchClause(ctx, c)

		for k := 0; k < c.CloseParens; k++ {
			closed := stack[len(stack)-1]
			val := closed.overall || closed.groupResult
			stack = stack[:len(stack)-1]
			parent := &stack[len(stack)-1]
			parent.groupResult = parent.groupResult && val
		}
	}
	last := stack[len(stack)-1]
	return last.overall || last.groupResult
}

func matchClause(ctx Context, c Clause) bool {
	actual := GetValByPath(ctx, c.Field)
	switch c.Op {
	case OpEq:
		return compareEq(actual, c.Value)
	case OpNeq:
		return !compareEq(actual, c.Value)
	case OpLt, OpLte, OpGt, OpGte:
		return compareOrdered(actual, c.Value, c.Op)
	case OpLike, OpNotLike:
		var matched bool
		if pattern, ok := c.Value.(string); ok && c.Field == "topic" && strings.ContainsAny(pattern, "+#") {
			// MQTT wildcards in a topic pattern use topic matching, not LIKE.
			matched = topic.Matches(pattern, fmt.Sprintf("%v", actual))
		} else {
			matched = c.like != nil && c.like.MatchString(fmt.Sprintf("%v", actual))
		}
		return matched == (c.Op == OpLike)
	case OpIn:
		for _, v := range c.Values {
			if compareEq(actual, v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func compareEq(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareOrdered(a, b any, op Op) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch op {
		case OpLt:
			return af < bf
		case OpLte:
			return af <= bf
		case OpGt:
			return af > bf
		case OpGte:
			return af >= bf
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch op {
	case OpLt:
		return as < bs
	case OpLte:
		return as <= bs
	case OpGt:
		return as > bs
	case OpGte:
		return as >= bs
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// likeToRegexp compiles a SQL LIKE pattern ('%' = any run, '_' = any one
// char) to an anchored regexp.
func likeToRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteByte('$')
	return regexp.Compile(sb.String())
}

// ToSQL reconstructs the WHERE expression from the compiled clauses,
// round-tripping through Compile without loss (spec.md §8 property).
func (f *Filter) ToSQL() string {
	var sb strings.Builder
	for i, c := range f.Clauses {
		if i > 0 {
			sb.WriteByte(' ')
			sb.WriteString(c.Connector)
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.Repeat("(", c.OpenParens))
		sb.WriteString(c.Field)
		sb.WriteByte(' ')
		sb.WriteString(string(c.Op))
		sb.WriteByte(' ')
		switch c.Op {
		case OpIn:
			strs := make([]string, len(c.Values))
			for i, v := range c.Values {
				strs[i] = literalSQL(v)
			}
			sb.WriteString("(" + strings.Join(strs, ", ") + ")")
		default:
			sb.WriteString(literalSQL(c.Value))
		}
		sb.WriteString(strings.Repeat(")", c.CloseParens))
	}
	return sb.String()
}

func literalSQL(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}
