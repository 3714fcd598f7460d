package rule

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/dispatch"
	"github.com/gsoultan/mqttpulse/pkg/eventbus"
	"github.com/gsoultan/mqttpulse/pkg/filter"
	"github.com/gsoultan/mqttpulse/pkg/pool"
)

func TestRuleMatchesTopicAndWhere(t *testing.T) {
	f, err := filter.Compile("w", "payload.value > 10")
	require.NoError(t, err)
	r := &Rule{Name: "hot", TopicPattern: "sensors/+/temp", Where: f}

	hot := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "sensors/r1/temp", 0, []byte(`{"value": 99}`))
	cold := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "sensors/r1/temp", 0, []byte(`{"value": 1}`))
	other := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "sensors/r1/humidity", 0, []byte(`{"value": 99}`))

	_, ok := r.Matches("edge", hot)
	require.True(t, ok)
	_, ok = r.Matches("edge", cold)
	require.False(t, ok)
	_, ok = r.Matches("edge", other)
	require.False(t, ok)
}

func TestBuildRowWithAliases(t *testing.T) {
	r := &Rule{Select: []SelectField{{Path: "topic"}, {Path: "payload.value", Alias: "v"}}}
	m := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "a/b", 1, []byte(`{"value": 7}`))
	fctx := filter.BuildContext(m)
	row := r.BuildRow(fctx)
	require.Equal(t, "a/b", row["topic"])
	require.EqualValues(t, 7, row["v"])
}

func TestLogActionAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rule.log")
	act, err := NewLogAction(path)
	require.NoError(t, err)
	defer act.Close()

	require.NoError(t, act.Do(context.Background(), map[string]any{"topic": "a/b"}, nil))
	require.NoError(t, act.Do(context.Background(), map[string]any{"topic": "c/d"}, nil))
	require.NoError(t, act.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.Len(t, lines, 2)
	var row map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &row))
	require.Equal(t, "a/b", row["topic"])
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func TestRuleActionErrorEmittedOnBus(t *testing.T) {
	bus := eventbus.New()
	errs := make(chan eventbus.Event, 1)
	bus.Subscribe(eventbus.OnRuleError, func(ev eventbus.Event) { errs <- ev })

	r := &Rule{Name: "always", Enabled: true, Actions: []Action{failingAction{}}}
	m := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "a/b", 0, []byte("{}"))
	ran := r.Run(context.Background(), bus, "edge", m)
	require.True(t, ran)

	select {
	case ev := <-errs:
		require.Equal(t, "always", ev.RuleName)
	case <-time.After(time.Second):
		t.Fatal("expected a rule action error event")
	}
}

func TestRunSkipsDisabledRule(t *testing.T) {
	bus := eventbus.New()
	r := &Rule{Name: "off", Enabled: false, Actions: []Action{failingAction{}}}
	m := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "a/b", 0, []byte("{}"))

	ran := r.Run(context.Background(), bus, "edge", m)
	require.False(t, ran)
}

func TestEngineSetEnabledTogglesRule(t *testing.T) {
	e := NewEngine(eventbus.New())
	r := &Rule{Name: "toggle", Enabled: true}
	e.Add(r)

	require.True(t, e.SetEnabled("toggle", false))
	require.False(t, r.Enabled)
	require.False(t, e.SetEnabled("missing", true))
}

type mutateFakeConn struct{ pubs chan *mqttpulse.Message }

func (c *mutateFakeConn) Publish(_ context.Context, topic string, qos byte, retain bool, payload []byte, props mqttpulse.Properties) error {
	c.pubs <- mqttpulse.NewMessage(mqttpulse.MessagePublish, mqttpulse.DirectionOutgoing, topic, qos, payload, mqttpulse.WithRetain(retain), mqttpulse.WithProperties(props))
	return nil
}
func (c *mutateFakeConn) Subscribe(context.Context, string, byte, mqttpulse.Properties) error { return nil }
func (c *mutateFakeConn) Unsubscribe(context.Context, string) error                           { return nil }
func (c *mutateFakeConn) Receive(ctx context.Context) (*mqttpulse.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (c *mutateFakeConn) Close() error          { return nil }
func (c *mutateFakeConn) Active() bool          { return true }
func (c *mutateFakeConn) LastUsedAt() time.Time { return time.Now() }
func (c *mutateFakeConn) ClientID() string      { return "mutate-fake" }

func TestMutateActionRewritesFieldAndForwards(t *testing.T) {
	fc := &mutateFakeConn{pubs: make(chan *mqttpulse.Message, 1)}
	dial := func(context.Context, mqttpulse.ClientConfig, string) (mqttpulse.Connection, error) { return fc, nil }
	p := pool.New(mqttpulse.PoolConfig{Name: "edge", MaxConnections: 1, ConnectTimeout: time.Second}, mqttpulse.ClientConfig{}, dial)
	defer p.Close()

	d := dispatch.New(eventbus.New())
	d.RegisterPool("edge", p)

	action := NewMutateAction(d, "edge", "sensors/r1/temp/redacted", 0, "sensor.id", "redacted")
	msg := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, "sensors/r1/temp", 0,
		[]byte(`{"value":42,"sensor":{"id":"r1"}}`))

	require.NoError(t, action.Do(context.Background(), nil, msg))

	select {
	case out := <-fc.pubs:
		require.JSONEq(t, `{"value":42,"sensor":{"id":"redacted"}}`, string(out.Payload))
		require.Equal(t, "sensors/r1/temp/redacted", out.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected the mutated payload to be republished")
	}
}

type failingAction struct{}

func (failingAction) Name() string { return "boom" }
func (failingAction) Do(context.Context, map[string]any, *mqttpulse.Message) error {
	return errBoom
}

var errBoom = errBoomType{}

type errBoomType struct{}

func (errBoomType) Error() string { return "boom" }
