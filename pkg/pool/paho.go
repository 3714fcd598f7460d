package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/gsoultan/mqttpulse"
)

// pahoConnection adapts a github.com/eclipse/paho.mqtt.golang Client to
// mqttpulse.Connection. Incoming publishes are delivered by the library on
// its own goroutine via a MessageHandler; they are funneled into inbox so
// Receive can present the usual context-cancellable pull API the
// dispatcher's receive loop expects.
type pahoConnection struct {
	client   paho.Client
	clientID string
	inbox    chan *mqttpulse.Message

	mu       sync.Mutex
	lastUsed time.Time
}

// Dial is the production DialFunc, grounded on the teacher's stack choice
// of eclipse/paho.mqtt.golang for MQTT transport.
func Dial(ctx context.Context, cfg mqttpulse.ClientConfig, poolName string) (mqttpulse.Connection, error) {
	clientID := cfg.ClientIDProvider()
	c := &pahoConnection{
		clientID: clientID,
		inbox:    make(chan *mqttpulse.Message, 256),
		lastUsed: time.Now(),
	}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(clientID).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(false). // reconnection is the pool's job, not the client's
		SetDefaultPublishHandler(c.onMessage)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !waitToken(ctx, token) {
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, &mqttpulse.ConnectFailedError{Pool: poolName, Err: err}
	}
	return c, nil
}

func (c *pahoConnection) onMessage(_ paho.Client, m paho.Message) {
	msg := mqttpulse.NewMessage(
		mqttpulse.MessageData,
		mqttpulse.DirectionIncoming,
		m.Topic(),
		m.Qos(),
		m.Payload(),
		mqttpulse.WithRetain(m.Retained()),
		mqttpulse.WithDup(m.Duplicate()),
	)
	select {
	case c.inbox <- msg:
	default:
		// Inbox full: the receive loop is not keeping up. Drop rather
		// than block the shared paho delivery goroutine indefinitely.
	}
}

func waitToken(ctx context.Context, t paho.Token) bool {
	done := make(chan struct{})
	go func() {
		t.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *pahoConnection) touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

func (c *pahoConnection) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte, props mqttpulse.Properties) error {
	c.touch()
	token := c.client.Publish(topic, qos, retain, payload)
	if !waitToken(ctx, token) {
		return &mqttpulse.TimeoutError{Op: "publish"}
	}
	return token.Error()
}

func (c *pahoConnection) Subscribe(ctx context.Context, topic string, qos byte, props mqttpulse.Properties) error {
	c.touch()
	token := c.client.Subscribe(topic, qos, c.onMessage)
	if !waitToken(ctx, token) {
		return &mqttpulse.TimeoutError{Op: "subscribe"}
	}
	return token.Error()
}

func (c *pahoConnection) Unsubscribe(ctx context.Context, topic string) error {
	c.touch()
	token := c.client.Unsubscribe(topic)
	if !waitToken(ctx, token) {
		return &mqttpulse.TimeoutError{Op: "unsubscribe"}
	}
	return token.Error()
}

func (c *pahoConnection) Receive(ctx context.Context) (*mqttpulse.Message, error) {
	select {
	case m, ok := <-c.inbox:
		if !ok {
			return nil, &mqttpulse.ConnectionClosedError{}
		}
		c.touch()
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pahoConnection) Close() error {
	c.client.Disconnect(250)
	return nil
}

func (c *pahoConnection) Active() bool {
	return c.client.IsConnectionOpen()
}

func (c *pahoConnection) LastUsedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

func (c *pahoConnection) ClientID() string {
	return c.clientID
}
