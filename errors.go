package mqttpulse

import "fmt"

// Error kinds per spec.md §7. Each is a distinct type so callers can use
// errors.As to branch on kind without string matching.

type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return "mqttpulse: invalid config: " + e.Msg }

type InvalidMethodError struct{ Method string }

func (e *InvalidMethodError) Error() string {
	return fmt.Sprintf("mqttpulse: invalid dispatcher method %q", e.Method)
}

type PoolExhaustedError struct{ Pool string }

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("mqttpulse: pool %q exhausted", e.Pool)
}

type PoolClosingError struct{ Pool string }

func (e *PoolClosingError) Error() string {
	return fmt.Sprintf("mqttpulse: pool %q is closing", e.Pool)
}

type ConnectFailedError struct {
	Pool string
	Err  error
}

func (e *ConnectFailedError) Error() string {
	return fmt.Sprintf("mqttpulse: pool %q connect failed: %v", e.Pool, e.Err)
}
func (e *ConnectFailedError) Unwrap() error { return e.Err }

type ConnectionClosedError struct{ Pool string }

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("mqttpulse: connection in pool %q closed", e.Pool)
}

type ProtocolError struct {
	ReasonCode byte
	Msg        string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mqttpulse: protocol error (reason=%d): %s", e.ReasonCode, e.Msg)
}

type TimeoutError struct{ Op string }

func (e *TimeoutError) Error() string { return fmt.Sprintf("mqttpulse: %s timed out", e.Op) }

// ParseError is raised by the filter/rule compiler at compile time.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string { return fmt.Sprintf("mqttpulse: parse error at %d: %s", e.Pos, e.Msg) }

type NotConnectedError struct{}

func (e *NotConnectedError) Error() string { return "mqttpulse: tap transport not connected" }

type FrameError struct{ Msg string }

func (e *FrameError) Error() string { return "mqttpulse: frame error: " + e.Msg }

// RuleActionError wraps a failed rule action; it is reported on the event
// bus (C5) and never aborts remaining actions (spec.md §4.8).
type RuleActionError struct {
	Rule   string
	Action string
	Err    error
}

func (e *RuleActionError) Error() string {
	return fmt.Sprintf("mqttpulse: rule %q action %q failed: %v", e.Rule, e.Action, e.Err)
}
func (e *RuleActionError) Unwrap() error { return e.Err }
