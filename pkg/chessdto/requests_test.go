package chessdto

import (
	"encoding/json"
	"testing"
)

func TestMoveRequestDecode(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"san", `{"move":"Nf3"}`, "Nf3"},
		{"uci", `{"move":" e2e4 "}`, "e2e4"},
		{"object", `{"move":{"from":"E7","to":"e8","promotion":"Q"}}`, "e7e8q"},
		{"object without promotion", `{"move":{"from":"g1","to":"f3"}}`, "g1f3"},
		{"object missing to", `{"move":{"from":"g1"}}`, ""},
		{"null", `{"move":null}`, ""},
		{"absent", `{}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req MoveRequest
			if err := json.Unmarshal([]byte(tc.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := req.Move.Text(); got != tc.want {
				t.Fatalf("Text() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMoveRequestRejectsNumber(t *testing.T) {
	var req MoveRequest
	if err := json.Unmarshal([]byte(`{"move":42}`), &req); err == nil {
		t.Fatal("expected error for numeric move")
	}
}

func TestMoveInputMarshal(t *testing.T) {
	raw, err := json.Marshal(MoveRequest{Move: &MoveInput{Notation: "e4"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"move":"e4"}` {
		t.Fatalf("got %s", raw)
	}
	raw, _ = json.Marshal(MoveRequest{Move: &MoveInput{From: "e2", To: "e4"}})
	if string(raw) != `{"move":{"from":"e2","to":"e4"}}` {
		t.Fatalf("got %s", raw)
	}
}

func TestDomainErrorMessage(t *testing.T) {
	if got := (DomainError{Code: "not_found"}).Error(); got != "not_found" {
		t.Fatalf("got %q", got)
	}
	if got := (DomainError{}).Error(); got != "chess service error" {
		t.Fatalf("got %q", got)
	}
}
