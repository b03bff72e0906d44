package mq

import "time"

// Routing keys on the pressroom.events exchange.
const (
	RoutingKeyEmailReceived = "email.received"
)

// EmailReceivedEvent is published through the outbox whenever the dedup gate
// accepts a new email.
type EmailReceivedEvent struct {
	EmailID     string    `json:"email_id"`
	Fingerprint string    `json:"fingerprint"`
	Sender      string    `json:"sender"`
	Subject     string    `json:"subject"`
	AutoProcess bool      `json:"auto_process"`
	ReceivedAt  time.Time `json:"received_at"`
}
