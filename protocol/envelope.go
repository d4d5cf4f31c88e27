package protocol

// EnvelopeKind distinguishes requests travelling towards the primary from
// responses travelling back down the tree.
type EnvelopeKind string

const (
	// Request Envelopes carry a Job towards the primary.
	Request EnvelopeKind = "request"
	// Response Envelopes carry the Result of a previously relayed Request.
	Response EnvelopeKind = "response"
)

// Envelope is the id-correlated wrapper exchanged between adjacent execution
// contexts. ID is meaningful only across a single hop: each relay assigns its
// own ID to a forwarded Request, and maps the Response back to the ID its
// child originally sent.
type Envelope struct {
	ID     uint64       `json:"id"`
	Kind   EnvelopeKind `json:"kind"`
	Job    *Job         `json:"job,omitempty"`
	Result *Result      `json:"result,omitempty"`
}

// Validate returns an error if the Envelope is not well-formed. It does not
// validate a Request's Job, which is only interpreted by the primary.
func (m *Envelope) Validate() error {
	if m.ID == 0 {
		return NewValidationError("expected ID")
	}
	switch m.Kind {
	case Request:
		if m.Job == nil {
			return NewValidationError("expected Job of Request")
		} else if m.Result != nil {
			return NewValidationError("unexpected Result of Request")
		}
	case Response:
		if m.Result == nil {
			return NewValidationError("expected Result of Response")
		} else if m.Job != nil {
			return NewValidationError("unexpected Job of Response")
		}
	default:
		return NewValidationError("invalid Kind (%q)", m.Kind)
	}
	return nil
}
