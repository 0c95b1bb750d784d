package ws

import "encoding/json"

// MessageType constants for the live assessment protocol.
const (
	// Client -> Server
	TypeSelect       = "select"
	TypeSetSelection = "set_selection"
	TypeSetValue     = "set_value"
	TypeAdvance      = "advance"
	TypeRetreat      = "retreat"
	TypeRestart      = "restart"

	// Server -> Client
	TypeState    = "state"
	TypeNavigate = "navigate"
	TypeError    = "error"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage encodes payload into a message of the given type.
func NewMessage(typ string, payload any) (Message, error) {
	msg := Message{Type: typ}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = data
	return msg, nil
}

// Client Messages (incoming)

type SelectPayload struct {
	QuestionID string `json:"question_id"`
	OptionID   string `json:"option_id"`
}

type SetSelectionPayload struct {
	QuestionID string   `json:"question_id"`
	OptionIDs  []string `json:"option_ids"`
}

type SetValuePayload struct {
	QuestionID string  `json:"question_id"`
	Value      float64 `json:"value"`
}

// Server Messages (outgoing)

type NavigatePayload struct {
	Route string `json:"route"`
	Path  string `json:"path"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
