package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gsoultan/mqttpulse/pkg/filter"
	"github.com/gsoultan/mqttpulse/pkg/rule"
)

// dispatch parses and runs one line typed at the prompt, returning true
// when the shell should exit (the `quit` command).
func (s *session) dispatch(line string) bool {
	args := splitArgs(line)
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "quit", "exit":
		return true
	case "help":
		printHelp()
	case "filter":
		s.cmdFilter(args[1:])
	case "stats":
		s.cmdStats(args[1:])
	case "history":
		s.cmdHistory(args[1:])
	case "tree":
		fmt.Print(s.statsEng.Tree.Render(time.Now()))
	case "flow":
		s.cmdFlow(args[1:])
	case "rule":
		s.cmdRule(args[1:])
	case "pause":
		s.paused.Store(true)
		fmt.Println("paused")
	case "resume":
		s.paused.Store(false)
		fmt.Println("resumed")
	case "format":
		if len(args) < 2 {
			fmt.Println("usage: format compact|vertical|json")
			return false
		}
		s.format = args[1]
	default:
		fmt.Printf("unknown command: %s (try `help`)\n", args[0])
	}
	return false
}

func printHelp() {
	fmt.Println(`commands:
  filter add <expr>          set the active ad-hoc WHERE filter
  filter clear                clear the active filter
  filter show                 print the active filter as SQL
  filter save <name>           save the active filter as a named preset
  filter load <name>           load a named preset as the active filter
  filter delete <name>         delete a named preset
  filter list                  list preset names
  stats show                   print running counters
  stats reset                  zero all counters
  history show [n]              print the last n history entries (default 20)
  history search <pattern>       search history by topic pattern
  tree                          render the topic tree
  flow [limit] [topic]           render the flow timeline
  rule add <name> <topic> <logfile> [where <expr>]   add a log rule
  rule remove <name>             remove a rule
  rule list                      list rules
  pause / resume                 pause/resume live processing
  format compact|vertical|json    set the display format
  quit                           exit`)
}

func (s *session) cmdFilter(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: filter add|clear|show|save|load|delete|list ...")
		return
	}
	switch args[0] {
	case "add":
		expr := strings.Join(args[1:], " ")
		if looksLikeLegacyShorthand(expr) {
			expr = filter.ConvertLegacy(expr)
		}
		f, err := filter.Compile("adhoc", expr)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		s.current = f
		fmt.Println("filter set:", f.ToSQL())
	case "clear":
		s.current = nil
		fmt.Println("filter cleared")
	case "show":
		if s.current == nil {
			fmt.Println("(no active filter)")
			return
		}
		fmt.Println(s.current.ToSQL())
	case "save":
		if len(args) < 2 {
			fmt.Println("usage: filter save <name>")
			return
		}
		if s.current == nil {
			fmt.Println("(no active filter to save)")
			return
		}
		if err := s.presets.Save(args[1], s.current); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("saved as", args[1])
	case "load":
		if len(args) < 2 {
			fmt.Println("usage: filter load <name>")
			return
		}
		f, ok := s.presets.Get(args[1])
		if !ok {
			fmt.Println("no such preset:", args[1])
			return
		}
		s.current = f
		fmt.Println("filter set:", f.ToSQL())
	case "delete":
		if len(args) < 2 {
			fmt.Println("usage: filter delete <name>")
			return
		}
		if s.presets.Delete(args[1]) {
			fmt.Println("deleted", args[1])
		} else {
			fmt.Println("no such preset:", args[1])
		}
	case "list":
		names := s.presets.List()
		if len(names) == 0 {
			fmt.Println("(no presets)")
			return
		}
		for _, n := range names {
			fmt.Println(n)
		}
	default:
		fmt.Println("usage: filter add|clear|show|save|load|delete|list ...")
	}
}

func (s *session) cmdStats(args []string) {
	if len(args) == 0 || args[0] == "show" {
		c := s.statsEng.Counters
		fmt.Printf("total=%d in=%d out=%d errors=%d subscribes=%d disconnects=%d\n",
			c.Total.Load(), c.In.Load(), c.Out.Load(), c.Errors.Load(), c.Subscribes.Load(), c.Disconnects.Load())
		fmt.Printf("rate: %.2f msg/s\n", s.statsEng.Rate.RatePerSecond(time.Now()))
		lat := s.statsEng.Latency.Stats()
		fmt.Printf("latency: count=%d min=%s max=%s avg=%s\n", lat.Count, lat.Min, lat.Max, lat.Avg)
		fmt.Println("qos histogram:", c.QoSHistogram())
		fmt.Println("top topics:")
		for _, tc := range c.TopTopics(10) {
			fmt.Printf("  %-40s %d\n", tc.Topic, tc.Count)
		}
		return
	}
	if args[0] == "reset" {
		s.statsEng.Reset()
		fmt.Println("stats reset")
		return
	}
	fmt.Println("usage: stats show|reset")
}

func (s *session) cmdHistory(args []string) {
	if len(args) == 0 || args[0] == "show" {
		n := 20
		if len(args) > 1 {
			if v, err := strconv.Atoi(args[1]); err == nil {
				n = v
			}
		}
		for _, e := range s.history.GetLast(n) {
			fmt.Printf("[%d] %s\n", e.ID, renderCompact(e.Message))
		}
		return
	}
	if args[0] == "search" {
		if len(args) < 2 {
			fmt.Println("usage: history search <pattern>")
			return
		}
		for _, e := range s.history.Search(args[1]) {
			fmt.Printf("[%d] %s\n", e.ID, renderCompact(e.Message))
		}
		return
	}
	fmt.Println("usage: history show [n] | history search <pattern>")
}

func (s *session) cmdFlow(args []string) {
	limit := 0
	topicFilter := ""
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			limit = v
			if len(args) > 1 {
				topicFilter = args[1]
			}
		} else {
			topicFilter = args[0]
		}
	}
	fmt.Print(s.statsEng.Flow.Render(limit, topicFilter))
}

func (s *session) cmdRule(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: rule add|remove|list|enable|disable ...")
		return
	}
	switch args[0] {
	case "add":
		s.cmdRuleAdd(args[1:])
	case "remove":
		if len(args) < 2 {
			fmt.Println("usage: rule remove <name>")
			return
		}
		s.rules.Remove(args[1])
		fmt.Println("removed", args[1])
	case "list":
		for _, r := range s.rules.Rules() {
			fmt.Printf("%s: enabled=%v topic=%s where=%v\n", r.Name, r.Enabled, r.TopicPattern, r.Where != nil)
		}
	case "enable":
		if len(args) < 2 {
			fmt.Println("usage: rule enable <name>")
			return
		}
		if s.rules.SetEnabled(args[1], true) {
			fmt.Println("enabled", args[1])
		} else {
			fmt.Println("no such rule:", args[1])
		}
	case "disable":
		if len(args) < 2 {
			fmt.Println("usage: rule disable <name>")
			return
		}
		if s.rules.SetEnabled(args[1], false) {
			fmt.Println("disabled", args[1])
		} else {
			fmt.Println("no such rule:", args[1])
		}
	default:
		fmt.Println("usage: rule add|remove|list|enable|disable ...")
	}
}

// cmdRuleAdd parses: rule add <name> <topic> <logfile> [where <expr...>]
func (s *session) cmdRuleAdd(args []string) {
	if len(args) < 3 {
		fmt.Println("usage: rule add <name> <topic> <logfile> [where <expr>]")
		return
	}
	name, topicPattern, logPath := args[0], args[1], args[2]

	var where *filter.Filter
	if len(args) > 3 && args[3] == "where" {
		expr := strings.Join(args[4:], " ")
		f, err := filter.Compile(name, expr)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		where = f
	}

	action, err := rule.NewLogAction(logPath)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	s.rules.Add(&rule.Rule{
		Name:         name,
		Enabled:      true, // rules are active as soon as they're added; use `rule disable` to pause one
		TopicPattern: topicPattern,
		Where:        where,
		Actions:      []rule.Action{action},
	})
	fmt.Println("rule added:", name)
}

// looksLikeLegacyShorthand reports whether expr is the legacy
// whitespace-separated "field:pattern" syntax (spec.md §6) rather than a
// WHERE expression: it has no operator keywords/symbols of the SQL-like
// grammar but does contain a ':' token separator.
func looksLikeLegacyShorthand(expr string) bool {
	if !strings.Contains(expr, ":") {
		return false
	}
	lower := strings.ToLower(expr)
	for _, tok := range []string{"=", "!=", "<", ">", " like", " in", " and ", " or "} {
		if strings.Contains(lower, tok) {
			return false
		}
	}
	return true
}

// splitArgs tokenizes line on whitespace, honoring double-quoted spans so
// `filter add` / `rule add ... where` can pass a WHERE expression
// containing spaces as a single shell argument.
func splitArgs(line string) []string {
	var args []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			args = append(args, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return args
}
