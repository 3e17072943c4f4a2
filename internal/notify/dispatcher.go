package notify

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"costguard/internal/adapters/kafka"
	"costguard/internal/metrics"
	"costguard/pkg/logger"
)

// Notification is an operator-facing alert request.
// It is serialized to the notifications topic and rendered by the
// notification consumer.
type Notification struct {
	Kind      string    `json:"kind"` // anomaly, action_proposed, action_status
	Severity  string    `json:"severity,omitempty"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Producer is the messaging dependency of the dispatcher
type Producer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Dispatcher sends fire-and-forget notifications through Kafka.
// Delivery failures are logged, never propagated: alerting must not
// fail a scan or a lifecycle transition.
type Dispatcher struct {
	producer Producer
	timeout  time.Duration
	clock    clockwork.Clock
	log      *logger.Logger
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(producer Producer, timeout time.Duration, clock clockwork.Clock) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		producer: producer,
		timeout:  timeout,
		clock:    clock,
		log:      logger.Get().With("component", "notify_dispatcher"),
	}
}

// Dispatch sends a notification asynchronously. The returned channel
// closes when the publish attempt finishes; callers are free to ignore it.
func (d *Dispatcher) Dispatch(n Notification) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if n.CreatedAt.IsZero() {
			n.CreatedAt = d.clock.Now().UTC()
		}

		if err := d.producer.Publish(ctx, kafka.TopicNotifications, n.Kind, n); err != nil {
			metrics.NotificationsDispatched.WithLabelValues(n.Kind, "error").Inc()
			d.log.Errorf("Failed to dispatch %s notification: %v", n.Kind, err)
			return
		}
		metrics.NotificationsDispatched.WithLabelValues(n.Kind, "success").Inc()
		d.log.Debugf("Dispatched %s notification: %s", n.Kind, n.Subject)
	}()

	return done
}
