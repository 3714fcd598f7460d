package autowire

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/dispatch"
	"github.com/gsoultan/mqttpulse/pkg/eventbus"
	"github.com/gsoultan/mqttpulse/pkg/pool"
)

type fakeConn struct {
	id    string
	inbox chan *mqttpulse.Message
}

func (f *fakeConn) Publish(context.Context, string, byte, bool, []byte, mqttpulse.Properties) error {
	return nil
}
func (f *fakeConn) Subscribe(context.Context, string, byte, mqttpulse.Properties) error { return nil }
func (f *fakeConn) Unsubscribe(context.Context, string) error                          { return nil }
func (f *fakeConn) Receive(ctx context.Context) (*mqttpulse.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (f *fakeConn) Close() error          { return nil }
func (f *fakeConn) Active() bool          { return true }
func (f *fakeConn) LastUsedAt() time.Time { return time.Now() }
func (f *fakeConn) ClientID() string      { return f.id }

func TestWireIsIdempotent(t *testing.T) {
	n := 0
	dial := func(ctx context.Context, cfg mqttpulse.ClientConfig, poolName string) (mqttpulse.Connection, error) {
		n++
		return &fakeConn{id: fmt.Sprintf("c%d", n)}, nil
	}
	p := pool.New(mqttpulse.PoolConfig{Name: "edge", MaxConnections: 5, ConnectTimeout: time.Second}, mqttpulse.ClientConfig{}, dial)
	defer p.Close()

	bus := eventbus.New()
	d := dispatch.New(bus)
	d.RegisterPool("edge", p)

	topics := []mqttpulse.TopicConfig{
		{Topic: "sensors/+/temp", QoS: 1},
		{Topic: "work/jobs", QoS: 1, EnableMultiSub: true, MultiSub: 3},
	}

	ctx := context.Background()
	require.NoError(t, Wire(ctx, d, "edge", topics))
	require.NoError(t, Wire(ctx, d, "edge", topics))

	require.Eventually(t, func() bool { return d.ActiveLoops() == 4 }, time.Second, time.Millisecond)
}
