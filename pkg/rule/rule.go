// Package rule implements the SELECT/FROM/WHERE/DO rule engine (spec.md
// §4.8): a topic gate via pkg/topic, a WHERE predicate via pkg/filter,
// row projection, and pluggable actions. A failing action is reported on
// the event bus as a RuleActionError and never stops the remaining
// actions or rules from running.
package rule

import (
	"context"
	"strings"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/eventbus"
	"github.com/gsoultan/mqttpulse/pkg/filter"
	"github.com/gsoultan/mqttpulse/pkg/topic"
)

// SelectField is one projected output column: Path "*" selects the whole
// Context, otherwise Path is a dotted field resolved with
// filter.GetValByPath and optionally renamed via Alias.
type SelectField struct {
	Path  string
	Alias string
}

// Action is one DO clause entry, run once per matching message.
type Action interface {
	Do(ctx context.Context, row map[string]any, msg *mqttpulse.Message) error
	Name() string
}

// Rule is one compiled SELECT ... FROM ... WHERE ... DO ... statement.
type Rule struct {
	Name         string
	Enabled      bool // disabled rules are skipped before the topic/WHERE gate (spec.md §4.8 step 1)
	FromPool     string // "" matches any pool
	TopicPattern string
	Where        *filter.Filter // nil matches every message that passes the topic gate
	Select       []SelectField
	Actions      []Action
}

// Matches reports whether m (arriving on poolName) passes this rule's
// FROM/topic gate and WHERE predicate, returning the built Context for
// reuse by Run's row projection.
func (r *Rule) Matches(poolName string, m *mqttpulse.Message) (filter.Context, bool) {
	if r.FromPool != "" && r.FromPool != poolName {
		return nil, false
	}
	if r.TopicPattern != "" && !topic.Matches(r.TopicPattern, m.Topic) {
		return nil, false
	}
	fctx := filter.BuildContext(m)
	if r.Where != nil && !r.Where.Match(fctx) {
		return nil, false
	}
	return fctx, true
}

// BuildRow projects fctx through r.Select. A "*" field (the default when
// Select is empty) copies every Context field into the row.
func (r *Rule) BuildRow(fctx filter.Context) map[string]any {
	if len(r.Select) == 0 {
		return map[string]any(fctx)
	}
	row := make(map[string]any, len(r.Select))
	for _, f := range r.Select {
		if f.Path == "*" {
			for k, v := range fctx {
				row[k] = v
			}
			continue
		}
		name := f.Alias
		if name == "" {
			name = lastSegment(f.Path)
		}
		row[name] = filter.GetValByPath(fctx, f.Path)
	}
	return row
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Run evaluates r against m and, if it matches, projects a row and runs
// every action in order. Action failures are emitted on bus as
// RuleActionError and do not abort the remaining actions.
func (r *Rule) Run(ctx context.Context, bus *eventbus.Bus, poolName string, m *mqttpulse.Message) (ran bool) {
	if !r.Enabled {
		return false
	}
	fctx, ok := r.Matches(poolName, m)
	if !ok {
		return false
	}
	row := r.BuildRow(fctx)
	for _, action := range r.Actions {
		if err := action.Do(ctx, row, m); err != nil {
			bus.Emit(eventbus.Event{
				Kind:       eventbus.OnRuleError,
				Pool:       poolName,
				RuleName:   r.Name,
				ActionName: action.Name(),
				Err:        &mqttpulse.RuleActionError{Rule: r.Name, Action: action.Name(), Err: err},
			})
		}
	}
	return true
}

// Engine runs a fixed ordered set of Rules against every message the
// dispatcher's receive loops emit.
type Engine struct {
	bus   *eventbus.Bus
	rules []*Rule
}

func NewEngine(bus *eventbus.Bus) *Engine {
	return &Engine{bus: bus}
}

// Add appends r to the engine's rule set; rules run in the order added.
func (e *Engine) Add(r *Rule) { e.rules = append(e.rules, r) }

// Remove drops the rule named name, if present.
func (e *Engine) Remove(name string) {
	out := e.rules[:0]
	for _, r := range e.rules {
		if r.Name != name {
			out = append(out, r)
		}
	}
	e.rules = out
}

// Rules returns the current rule set in evaluation order.
func (e *Engine) Rules() []*Rule { return e.rules }

// SetEnabled flips the Enabled flag of the rule named name, reporting
// whether it was found.
func (e *Engine) SetEnabled(name string, enabled bool) bool {
	for _, r := range e.rules {
		if r.Name == name {
			r.Enabled = enabled
			return true
		}
	}
	return false
}

// AttachBus wires the engine to run every rule against each OnReceive
// event; returns an unsubscribe func.
func (e *Engine) AttachBus(ctx context.Context) func() {
	return e.bus.Subscribe(eventbus.OnReceive, func(ev eventbus.Event) {
		if ev.Message == nil {
			return
		}
		for _, r := range e.rules {
			r.Run(ctx, e.bus, ev.Pool, ev.Message)
		}
	})
}
