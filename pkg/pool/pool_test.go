package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gsoultan/mqttpulse"
)

type fakeConn struct {
	id       string
	closed   atomic.Bool
	lastUsed atomic.Int64
}

func (f *fakeConn) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte, props mqttpulse.Properties) error {
	return nil
}
func (f *fakeConn) Subscribe(ctx context.Context, topic string, qos byte, props mqttpulse.Properties) error {
	return nil
}
func (f *fakeConn) Unsubscribe(ctx context.Context, topic string) error { return nil }
func (f *fakeConn) Receive(ctx context.Context) (*mqttpulse.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (f *fakeConn) Close() error             { f.closed.Store(true); return nil }
func (f *fakeConn) Active() bool             { return !f.closed.Load() }
func (f *fakeConn) LastUsedAt() time.Time    { return time.Unix(0, f.lastUsed.Load()) }
func (f *fakeConn) ClientID() string         { return f.id }

func fakeDial(counter *atomic.Int32) DialFunc {
	return func(ctx context.Context, cfg mqttpulse.ClientConfig, poolName string) (mqttpulse.Connection, error) {
		n := counter.Add(1)
		c := &fakeConn{id: poolName}
		c.lastUsed.Store(time.Now().UnixNano())
		_ = n
		return c, nil
	}
}

func testCfg() mqttpulse.PoolConfig {
	return mqttpulse.PoolConfig{
		Name:              "test",
		MinConnections:    1,
		MaxConnections:    2,
		MaxIdleTime:       time.Hour,
		ConnectTimeout:    time.Second,
		HeartbeatInterval: 0,
	}
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	var dialed atomic.Int32
	p := New(testCfg(), mqttpulse.ClientConfig{}, fakeDial(&dialed))
	defer p.Close()

	require.EqualValues(t, 1, dialed.Load())
	st := p.Stats()
	require.Equal(t, 1, st.Free)

	conn, release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)
	require.Equal(t, 0, p.Stats().Free)
	require.Equal(t, 1, p.Stats().InUse)

	release()
	require.Equal(t, 1, p.Stats().Free)
	require.Equal(t, 0, p.Stats().InUse)
}

func TestAcquireExhaustedBlocksThenFails(t *testing.T) {
	var dialed atomic.Int32
	cfg := testCfg()
	cfg.MinConnections = 0
	cfg.MaxConnections = 1
	cfg.ConnectTimeout = 50 * time.Millisecond
	p := New(cfg, mqttpulse.ClientConfig{}, fakeDial(&dialed))
	defer p.Close()

	_, release1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release1()

	start := time.Now()
	_, _, err = p.Acquire(context.Background())
	require.Error(t, err)
	require.GreaterOrEqual(t, time.Since(start), cfg.ConnectTimeout)
	var exhausted *mqttpulse.PoolExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestAcquireWaitsForReleaseThenSucceeds(t *testing.T) {
	var dialed atomic.Int32
	cfg := testCfg()
	cfg.MinConnections = 0
	cfg.MaxConnections = 1
	cfg.ConnectTimeout = time.Second
	p := New(cfg, mqttpulse.ClientConfig{}, fakeDial(&dialed))
	defer p.Close()

	conn1, release1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release1()
	}()

	start := time.Now()
	conn2, release2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release2()
	require.Less(t, time.Since(start), cfg.ConnectTimeout)
	require.Same(t, conn1, conn2) // the only connection, handed off directly
	require.EqualValues(t, 1, dialed.Load())
}

func TestAcquireRespectsContextCancellationWhileWaiting(t *testing.T) {
	var dialed atomic.Int32
	cfg := testCfg()
	cfg.MinConnections = 0
	cfg.MaxConnections = 1
	cfg.ConnectTimeout = time.Second
	p := New(cfg, mqttpulse.ClientConfig{}, fakeDial(&dialed))
	defer p.Close()

	_, release1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release1()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBindContextReusesSameConnection(t *testing.T) {
	var dialed atomic.Int32
	cfg := testCfg()
	cfg.MinConnections = 0
	cfg.MaxConnections = 2
	p := New(cfg, mqttpulse.ClientConfig{}, fakeDial(&dialed))
	defer p.Close()

	ctx, release, err := p.BindContext(context.Background())
	require.NoError(t, err)
	defer release()

	conn1, ok := p.FromContext(ctx)
	require.True(t, ok)

	conn2, relNoop, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Same(t, conn1, conn2)
	relNoop() // no-op release for a context-bound acquire must not return it to the free list
	require.Equal(t, 1, p.Stats().InUse)
}

func TestCloseClosesFreeConnections(t *testing.T) {
	var dialed atomic.Int32
	p := New(testCfg(), mqttpulse.ClientConfig{}, fakeDial(&dialed))

	conn, release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	fc := conn.(*fakeConn)
	release()

	require.NoError(t, p.Close())
	require.True(t, fc.closed.Load())

	_, _, err = p.Acquire(context.Background())
	require.Error(t, err)
	var closing *mqttpulse.PoolClosingError
	require.ErrorAs(t, err, &closing)
}
