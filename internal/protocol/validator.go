package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxContentBytes = 4096 // 4KB max frame payload for a message body
	MaxContentChars = 2000 // max character count
)

// ValidateContent checks that a message body is worth sending. Whitespace
// only bodies are rejected the same way empty ones are.
func ValidateContent(text string) error {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxContentBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxContentBytes)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxContentChars {
		return fmt.Errorf("message exceeds %d character limit", MaxContentChars)
	}
	return nil
}
