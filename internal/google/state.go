package google

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// State is the context round-tripped through the authorization redirect. It
// identifies the connecting user and, when the flow started from an invite,
// the invite that anchors the (planner, user) pair.
type State struct {
	UserEmail string `json:"user_email"`
	InviteID  string `json:"invite_id,omitempty"`
}

// EncodeState serializes a State as URL-safe base64 JSON.
func EncodeState(s State) string {
	raw, _ := json.Marshal(s)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeState parses a state value returned by the provider. The value is
// untrusted: anything undecodable yields the zero State so callbacks degrade
// to "no invite context" instead of failing.
func DecodeState(raw string) State {
	var s State
	if raw == "" {
		return s
	}
	// Tolerate padded variants of the encoding.
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return State{}
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}
	}
	return s
}
