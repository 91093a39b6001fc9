package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"aetheris-dashboard/internal/models"
	"aetheris-dashboard/internal/store"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	EventAlertRaised           = "alert.raised"
	EventAlertAcknowledged     = "alert.acknowledged"
	EventAlertsAcknowledgedAll = "alert.acknowledged_all"
)

// Producer is the subset of *kafka.Producer the journal uses.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// AlertEvent is one record on the alert events topic.
type AlertEvent struct {
	Event        string          `json:"event"`
	AlertID      string          `json:"alert_id,omitempty"`
	PatientID    string          `json:"patient_id,omitempty"`
	Severity     models.Severity `json:"severity,omitempty"`
	Title        string          `json:"title,omitempty"`
	Acknowledged bool            `json:"acknowledged"`
	UnreadCount  int             `json:"unread_count"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// AlertJournal publishes alert lifecycle transitions. Each alert is
// journaled as raised and as acknowledged at most once.
type AlertJournal struct {
	producer Producer
	topic    string
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	raised map[string]struct{}
	acked  map[string]struct{}
}

func NewKafkaProducer(brokers, clientID string) (*kafka.Producer, error) {
	return kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         clientID,
		"acks":              "1",
	})
}

func NewAlertJournal(producer Producer, topic string, logger *zap.Logger) *AlertJournal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertJournal{
		producer: producer,
		topic:    topic,
		logger:   logger.Named("journal"),
		now:      time.Now,
		raised:   make(map[string]struct{}),
		acked:    make(map[string]struct{}),
	}
}

// Observe is a store.Listener.
func (j *AlertJournal) Observe(action store.Action, st store.State) {
	switch act := action.(type) {
	case store.AddAlert:
		if a, ok := st.FindAlert(act.Alert.ID); ok && j.mark(j.raised, a.ID) {
			j.publish(j.alertEvent(EventAlertRaised, a, st))
		}
	case store.MergeAlerts:
		for _, incoming := range act.Alerts {
			j.mu.Lock()
			j.raised[incoming.ID] = struct{}{}
			if incoming.Acknowledged {
				j.acked[incoming.ID] = struct{}{}
			}
			j.mu.Unlock()
		}
	case store.AcknowledgeAlert:
		if a, ok := st.FindAlert(act.ID); ok && a.Acknowledged && j.mark(j.acked, a.ID) {
			j.publish(j.alertEvent(EventAlertAcknowledged, a, st))
		}
	case store.AcknowledgeAll:
		j.mu.Lock()
		fresh := 0
		for _, a := range st.Alerts {
			if _, done := j.acked[a.ID]; !done {
				j.acked[a.ID] = struct{}{}
				fresh++
			}
		}
		j.mu.Unlock()
		if fresh > 0 {
			j.publish(AlertEvent{Event: EventAlertsAcknowledgedAll, Acknowledged: true, UnreadCount: st.UnreadAlertCount(), OccurredAt: j.now()})
		}
	}
}

// mark records id in set and reports whether it was new.
func (j *AlertJournal) mark(set map[string]struct{}, id string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, seen := set[id]; seen {
		return false
	}
	set[id] = struct{}{}
	return true
}

func (j *AlertJournal) alertEvent(event string, a models.Alert, st store.State) AlertEvent {
	return AlertEvent{
		Event:        event,
		AlertID:      a.ID,
		PatientID:    a.PatientID,
		Severity:     a.Type,
		Title:        a.Title,
		Acknowledged: a.Acknowledged,
		UnreadCount:  st.UnreadAlertCount(),
		OccurredAt:   j.now(),
	}
}

func (j *AlertJournal) publish(ev AlertEvent) {
	value, err := json.Marshal(ev)
	if err != nil {
		j.logger.Error("Error marshalling alert event", zap.Error(err))
		return
	}
	key := ev.PatientID
	if key == "" {
		key = ev.AlertID
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &j.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}
	if err := j.producer.Produce(msg, nil); err != nil {
		j.logger.Warn("Failed to enqueue alert event", zap.String("event", ev.Event), zap.Error(err))
	}
}

// RunDeliveryReports logs failed deliveries until ctx is cancelled.
func (j *AlertJournal) RunDeliveryReports(ctx context.Context) {
	j.logger.Info("Alert journal started", zap.String("topic", j.topic))
	events := j.producer.Events()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Alert journal stopping")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					j.logger.Warn("Alert event delivery failed", zap.Error(e.TopicPartition.Error))
				}
			case kafka.Error:
				j.logger.Error("Kafka error", zap.Error(e))
			}
		}
	}
}

// Close flushes pending events and releases the producer.
func (j *AlertJournal) Close() {
	if remaining := j.producer.Flush(5000); remaining > 0 {
		j.logger.Warn("Alert events left unflushed", zap.Int("count", remaining))
	}
	j.producer.Close()
}
