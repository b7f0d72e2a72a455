package chessdto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type PlayersInput struct {
	White *string `json:"white,omitempty"`
	Black *string `json:"black,omitempty"`
}

type CreateGameRequest struct {
	InitialFEN *string       `json:"initialFen,omitempty"`
	Players    *PlayersInput `json:"players,omitempty"`
}

type MoveRequest struct {
	Move *MoveInput `json:"move"`
}

// MoveInput accepts either a notation string ("Nf3", "e2e4") or
// an object {"from":"e7","to":"e8","promotion":"q"}.
type MoveInput struct {
	Notation  string `json:"-"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
}

func (m *MoveInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &m.Notation)
	}
	if len(data) > 0 && data[0] == '{' {
		type plain MoveInput
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*m = MoveInput(p)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	return fmt.Errorf("move must be a string or an object")
}

func (m MoveInput) MarshalJSON() ([]byte, error) {
	if m.Notation != "" {
		return json.Marshal(m.Notation)
	}
	type plain MoveInput
	return json.Marshal(plain(m))
}

// Text returns the move as a notation string; objects become coordinate form.
func (m *MoveInput) Text() string {
	if m == nil {
		return ""
	}
	if s := strings.TrimSpace(m.Notation); s != "" {
		return s
	}
	from := strings.ToLower(strings.TrimSpace(m.From))
	to := strings.ToLower(strings.TrimSpace(m.To))
	if from == "" || to == "" {
		return ""
	}
	return from + to + strings.ToLower(strings.TrimSpace(m.Promotion))
}
