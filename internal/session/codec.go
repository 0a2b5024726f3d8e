package session

import (
	"encoding/json"
	"fmt"

	"github.com/chatrelay/chatrelay/internal/storage"
	"github.com/chatrelay/chatrelay/pkg/types"
)

// Encode serializes a session record exactly as the Store writes it.
func Encode(sess *types.Session) ([]byte, error) {
	data, err := storage.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	return data, nil
}

// Decode parses a session record. Missing message lists decode as empty.
func Decode(data []byte) (*types.Session, error) {
	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Messages == nil {
		sess.Messages = []types.Message{}
	}
	return &sess, nil
}
