package events

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProducer_WriterPerTopic(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "algotrading", zap.NewNop())

	a := p.writer("backtest-events")
	b := p.writer("backtest-events")
	c := p.writer("order-events")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "order-events", c.Topic)
	assert.Equal(t, kafka.RequireOne, c.RequiredAcks)

	require.NoError(t, p.Close())
	assert.Empty(t, p.writers)
}

func TestProducer_RejectsUnmarshalableValue(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "algotrading", zap.NewNop())
	defer p.Close()

	err := p.Publish(context.Background(), "backtest-events", "1", func() {})
	assert.Error(t, err)
	assert.Empty(t, p.writers, "no writer is created before the value is encoded")
}

func TestNop(t *testing.T) {
	var pub Publisher = Nop{}
	assert.NoError(t, pub.Publish(context.Background(), "t", "k", map[string]int{"a": 1}))
	assert.NoError(t, pub.Close())
}
