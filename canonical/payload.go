package canonical

// Payload is the envelope that request signatures cover. The wire field
// names are fixed: "request_id" with an underscore, and "body".
type Payload struct {
	RequestID string
	Body      any
}

// Map returns the payload as a JSON object.
func (p Payload) Map() map[string]any {
	return map[string]any{
		"body":       p.Body,
		"request_id": p.RequestID,
	}
}

// Bytes returns the canonical bytes of the payload with default options.
func (p Payload) Bytes() ([]byte, error) {
	return CanonicalizeWith(p.Map(), Options{})
}

// BytesWith returns the canonical bytes of the payload.
func (p Payload) BytesWith(opts Options) ([]byte, error) {
	return CanonicalizeWith(p.Map(), opts)
}
