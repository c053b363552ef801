package alerts

import "context"

// Message is one push notification addressed to a single device token.
type Message struct {
	To           string         `json:"to"`
	Title        string         `json:"title,omitempty"`
	Body         string         `json:"body"`
	Sound        string         `json:"sound,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	ExperienceID string         `json:"_experienceId,omitempty"`
}

// TicketError is a per-message rejection inside an otherwise accepted batch.
type TicketError struct {
	Token   string
	Code    string
	Message string
}

// SendResult is what the provider reported for an accepted batch.
type SendResult struct {
	Accepted     int
	TicketErrors []TicketError
}

// Sender is the push-delivery collaborator.
type Sender interface {
	// ValidToken reports whether token is syntactically a provider token.
	ValidToken(token string) bool
	// MaxChunkSize is the largest batch the provider accepts in one call.
	MaxChunkSize() int
	// SendBatch delivers messages in a single provider call. Any returned
	// error fails the whole batch.
	SendBatch(ctx context.Context, messages []Message) (SendResult, error)
}
