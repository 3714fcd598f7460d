package rule

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/dispatch"
	"github.com/gsoultan/mqttpulse/pkg/filter"
)

// LogAction appends each matching row as one JSON line to a file, using a
// buffered writer flushed after every write — the teacher's
// pkg/buffer.FileBuffer pattern (bufio.Writer over an append-only
// os.File) adapted from a binary message log to line-delimited JSON rows.
type LogAction struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func NewLogAction(path string) (*LogAction, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("rule log action: open %s: %w", path, err)
	}
	return &LogAction{path: path, file: f, writer: bufio.NewWriter(f)}, nil
}

func (a *LogAction) Name() string { return "log" }

func (a *LogAction) Do(_ context.Context, row map[string]any, _ *mqttpulse.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	if _, err := a.writer.Write(data); err != nil {
		return err
	}
	if err := a.writer.WriteByte('\n'); err != nil {
		return err
	}
	return a.writer.Flush()
}

func (a *LogAction) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writer.Flush(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}

// ForwardAction re-publishes the matching message's raw payload to
// another topic (possibly on another pool), re-entering the dispatcher.
type ForwardAction struct {
	dispatcher *dispatch.Dispatcher
	pool       string
	topic      string
	qos        byte
}

func NewForwardAction(d *dispatch.Dispatcher, pool, topic string, qos byte) *ForwardAction {
	return &ForwardAction{dispatcher: d, pool: pool, topic: topic, qos: qos}
}

func (a *ForwardAction) Name() string { return "forward" }

func (a *ForwardAction) Do(ctx context.Context, _ map[string]any, msg *mqttpulse.Message) error {
	return a.dispatcher.Publish(ctx, a.pool, a.topic, a.qos, msg.Retain, msg.Payload, msg.Properties)
}

// MutateAction rewrites one JSON field of the matching message's payload
// and republishes the result, letting a rule redact or enrich traffic in
// flight (e.g. stripping a PII field before forwarding to a downstream
// topic).
type MutateAction struct {
	dispatcher *dispatch.Dispatcher
	pool       string
	topic      string
	qos        byte
	field      string
	value      any
}

func NewMutateAction(d *dispatch.Dispatcher, pool, topic string, qos byte, field string, value any) *MutateAction {
	return &MutateAction{dispatcher: d, pool: pool, topic: topic, qos: qos, field: field, value: value}
}

func (a *MutateAction) Name() string { return "mutate" }

func (a *MutateAction) Do(ctx context.Context, _ map[string]any, msg *mqttpulse.Message) error {
	payload, err := filter.SetValByPath(msg.Payload, a.field, a.value)
	if err != nil {
		return fmt.Errorf("mutate action: set %s: %w", a.field, err)
	}
	return a.dispatcher.Publish(ctx, a.pool, a.topic, a.qos, msg.Retain, payload, msg.Properties)
}
