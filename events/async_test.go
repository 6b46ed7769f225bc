package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gatedPublisher registra os eventos entregues e só libera a entrega quando gate fecha.
type gatedPublisher struct {
	mu      sync.Mutex
	got     []string
	started chan struct{}
	once    sync.Once
	gate    chan struct{}
	closed  bool
}

func newGatedPublisher() *gatedPublisher {
	return &gatedPublisher{started: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedPublisher) Publish(ctx context.Context, ev PurchaseEvent) error {
	g.once.Do(func() { close(g.started) })
	<-g.gate
	g.mu.Lock()
	defer g.mu.Unlock()
	g.got = append(g.got, ev.EventID)
	return nil
}

func (g *gatedPublisher) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func TestAsyncDeliversInOrderAndDrainsOnClose(t *testing.T) {
	inner := newGatedPublisher()
	close(inner.gate)
	a := NewAsync(inner, 8, time.Second, zap.NewNop())

	var want []string
	for i := 0; i < 3; i++ {
		ev := sampleEvent()
		want = append(want, ev.EventID)
		require.NoError(t, a.Publish(context.Background(), ev))
	}
	require.NoError(t, a.Close())

	assert.Equal(t, want, inner.got)
	assert.True(t, inner.closed)
	assert.ErrorIs(t, a.Publish(context.Background(), sampleEvent()), ErrPublisherClosed)
	assert.NoError(t, a.Close())
}

func TestAsyncPublishDoesNotWaitForSlowBroker(t *testing.T) {
	inner := newGatedPublisher()
	a := NewAsync(inner, 1, time.Second, zap.NewNop())

	start := time.Now()
	require.NoError(t, a.Publish(context.Background(), sampleEvent()))
	<-inner.started
	// A entrega está presa no broker; a fila ainda aceita um evento.
	require.NoError(t, a.Publish(context.Background(), sampleEvent()))
	assert.ErrorIs(t, a.Publish(context.Background(), sampleEvent()), ErrQueueFull)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(inner.gate)
	require.NoError(t, a.Close())
	assert.Len(t, inner.got, 2)
}

func TestKafkaPublisherDoesNotWaitForFullBatch(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "ryzer.test")
	defer p.Close()
	assert.Equal(t, kafkaBatchTimeout, p.writer.BatchTimeout)
	assert.LessOrEqual(t, p.writer.BatchTimeout, 50*time.Millisecond)
}
