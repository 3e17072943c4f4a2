package notify

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"costguard/internal/adapters/kafka"
	"costguard/pkg/errors"
)

// MockProducer is a mock for Producer
type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	args := m.Called(ctx, topic, key, event)
	return args.Error(0)
}

func TestDispatcher_Dispatch(t *testing.T) {
	producer := new(MockProducer)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	dispatcher := NewDispatcher(producer, time.Second, clock)

	producer.On("Publish", mock.Anything, kafka.TopicNotifications, "anomaly", mock.Anything).Return(nil)

	done := dispatcher.Dispatch(Notification{
		Kind:     "anomaly",
		Severity: "critical",
		Subject:  "openai cost anomaly (critical)",
		Body:     "OPENAI costs spiked 800.0% day-over-day ($10.00 → $90.00)",
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never completed")
	}

	producer.AssertExpectations(t)

	// CreatedAt is stamped from the injected clock when the caller leaves it zero
	sent := producer.Calls[0].Arguments.Get(3).(Notification)
	assert.Equal(t, clock.Now().UTC(), sent.CreatedAt)
}

func TestDispatcher_Dispatch_FailureIsSwallowed(t *testing.T) {
	producer := new(MockProducer)
	dispatcher := NewDispatcher(producer, time.Second, nil)

	producer.On("Publish", mock.Anything, kafka.TopicNotifications, "action_status", mock.Anything).
		Return(errors.ErrUnavailable)

	done := dispatcher.Dispatch(Notification{Kind: "action_status", Subject: "x", Body: "y"})

	// Delivery failure must not panic or propagate
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never completed")
	}
	producer.AssertExpectations(t)
}

func TestDispatcher_Dispatch_PreservesCreatedAt(t *testing.T) {
	producer := new(MockProducer)
	dispatcher := NewDispatcher(producer, time.Second, nil)

	producer.On("Publish", mock.Anything, kafka.TopicNotifications, "anomaly", mock.Anything).Return(nil)

	stamp := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	done := dispatcher.Dispatch(Notification{Kind: "anomaly", Subject: "x", Body: "y", CreatedAt: stamp})
	<-done

	require.Len(t, producer.Calls, 1)
	sent := producer.Calls[0].Arguments.Get(3).(Notification)
	assert.Equal(t, stamp, sent.CreatedAt)
}
