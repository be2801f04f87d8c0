package tasks

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinTitleLen       = 3
	MaxTitleLen       = 200
	MaxDescriptionLen = 1000
)

// ValidateTaskData checks a title/description pair before it is written.
// Title length is measured after trimming, description length before.
func ValidateTaskData(title, description string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return invalid("title", "title is required")
	}

	if n := utf8.RuneCountInString(trimmed); n < MinTitleLen {
		return invalid("title", fmt.Sprintf("title must be at least %d characters", MinTitleLen))
	} else if n > MaxTitleLen {
		return invalid("title", fmt.Sprintf("title must be at most %d characters", MaxTitleLen))
	}

	if utf8.RuneCountInString(description) > MaxDescriptionLen {
		return invalid("description", fmt.Sprintf("description must be at most %d characters", MaxDescriptionLen))
	}

	return nil
}
