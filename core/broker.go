package core

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBroker encapsulates a NATS connection used for fire-and-forget
// orchestration events.
type NATSBroker struct {
	Conn *nats.Conn
}

// NewNATSBroker creates a new NATSBroker connected to the provided URL.
func NewNATSBroker(url string) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSBroker{Conn: nc}, nil
}

// Publish sends data on the provided subject.
func (b *NATSBroker) Publish(subject string, data []byte) error {
	return b.Conn.Publish(subject, data)
}

// Subscribe registers a callback for a specific subject.
func (b *NATSBroker) Subscribe(subject string, cb nats.MsgHandler) error {
	_, err := b.Conn.Subscribe(subject, cb)
	return err
}

// Emit publishes an orchestration event on "choreography.<type>". Delivery
// is best-effort; failures are logged and never abort the turn.
func (b *NATSBroker) Emit(event OrchestrationEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("NATS broker: failed to marshal %s event: %v", event.Type, err)
		return
	}
	subject := "choreography." + event.Type
	if err := b.Conn.Publish(subject, data); err != nil {
		log.Printf("NATS broker: failed to publish to %s: %v", subject, err)
	}
}

// Close gracefully closes the connection.
func (b *NATSBroker) Close() {
	b.Conn.Close()
}
