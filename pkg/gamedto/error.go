package gamedto

// DomainError is the client-facing error shape emitted over the socket and
// the bot API. Retryable tells the client whether trying again can help
// (engine busy) or not (not your turn, illegal move).
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "game service error"
}
