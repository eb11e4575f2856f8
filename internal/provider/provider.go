// Package provider implements the outbound messaging collaborator: a
// Twilio-shaped HTTP API that accepts one send request per touch and reports
// back a provider message id. The send pipeline depends only on the Sender
// interface so tests can substitute a recording fake.
package provider

import "context"

// SendResult is the outcome of one send attempt as reported by the provider.
type SendResult struct {
	// ProviderMessageID is the provider-assigned message id (Twilio SID).
	// Empty on failure.
	ProviderMessageID string
	// HTTPStatus is the raw status code of the provider response.
	HTTPStatus int
	// ErrorCode is the provider's machine-readable error code, when present.
	ErrorCode string
	// ErrorMessage is the provider's human-readable failure description.
	ErrorMessage string
}

// OK reports whether the attempt succeeded: a 2xx response carrying a
// provider message id. Anything else is recorded as a per-row error.
func (r SendResult) OK() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300 && r.ProviderMessageID != ""
}

// Sender issues one outbound SMS. Implementations must be safe for
// concurrent use; the send phase fans out over claimed rows without locking.
type Sender interface {
	Send(ctx context.Context, to, body, statusCallbackURL string) (SendResult, error)
}
