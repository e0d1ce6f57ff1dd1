package domain

import "time"

// EventType clasifica los eventos que emite el core.
type EventType string

const (
	EventOrderSubmitted   EventType = "order.submitted"
	EventOrderUpdated     EventType = "order.updated"
	EventOrderRejected    EventType = "order.rejected"
	EventOrderTimeout     EventType = "order.timeout"
	EventRiskBreaker      EventType = "risk.breaker"
	EventArbOpportunity   EventType = "arbitrage.opportunity"
	EventArbExecuted      EventType = "arbitrage.executed"
	EventArbPartialFailed EventType = "arbitrage.partial_failure"
	EventTradeClosed      EventType = "trade.closed"
)

// Event es un mensaje del bus interno.
type Event struct {
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// NewEvent crea un evento con timestamp UTC actual.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Time: time.Now().UTC(), Payload: payload}
}
