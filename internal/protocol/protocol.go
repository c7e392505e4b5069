// Package protocol defines the JSON messages exchanged with a client over the
// session websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Command types.
const (
	TypeMode     = "MODE"
	TypeLanguage = "LANGUAGE"
	TypeGloss    = "GLOSS"
	TypeImage    = "IMAGE"
	TypeRepr     = "repr"
)

// TypeWord marks a word event sent to the client.
const TypeWord = "WORD"

// ErrMalformed is returned by Decode for payloads that are not a JSON object.
var ErrMalformed = errors.New("malformed command")

// Command is a client message. Only the field matching Type is meaningful.
type Command struct {
	Type  string `json:"type"`
	Mode  string `json:"mode,omitempty"`
	Lang  string `json:"lang,omitempty"`
	Gloss string `json:"gloss,omitempty"`
	Image string `json:"image,omitempty"`
}

// Decode parses a client message.
func Decode(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cmd, nil
}

// Status acknowledges a command.
type Status struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewStatus builds a status reply.
func NewStatus(code int, message string) Status {
	return Status{Status: code, Message: message}
}

// OK is the bare acknowledgement sent when there is nothing else to report.
func OK() Status {
	return Status{Status: http.StatusOK}
}

// Word is sent when a gesture is confirmed.
type Word struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewWord builds a word event.
func NewWord(text string) Word {
	return Word{Type: TypeWord, Text: text}
}
