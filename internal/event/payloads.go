package event

// SessionData is the payload of SessionCreated and SessionDeleted.
type SessionData struct {
	UserID string `json:"user_id"`
	Mode   string `json:"mode"`
}

// MessageData is the payload of MessageCreated.
type MessageData struct {
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// FailureData is the payload of MessageFailed.
type FailureData struct {
	Error string `json:"error"`
}

// RunData is the payload of RunStatus, published on every poll.
type RunData struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	State  string `json:"state"`
}
