package query

import (
	"errors"
	"strings"
)

// EmptyInputMessage is shown instead of sending an empty question.
const EmptyInputMessage = "Please enter a question!"

var ErrEmptyInput = errors.New(EmptyInputMessage)

// Query is the single user question, as sent to the relay and the upstream.
type Query struct {
	InputData string `json:"input_data" validate:"required"`
}

// New trims raw and returns ErrEmptyInput when nothing is left.
func New(raw string) (Query, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Query{}, ErrEmptyInput
	}
	return Query{InputData: text}, nil
}

// Reply is the upstream's answer. Either field may be absent.
type Reply struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Display returns the text to show for a reply: the message when present,
// else the error, else "".
func (r Reply) Display() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}
