package bot

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TriggerWord is the prefix that makes the bot reply to a message.
const TriggerWord = "twangy"

// TriggerDetector determines if a message should trigger a greeting
type TriggerDetector struct{}

// IsTriggered reports whether text starts with TriggerWord, ignoring case.
func (d *TriggerDetector) IsTriggered(text string) bool {
	if text == "" {
		return false
	}
	// Casers are stateful, so one is built per call.
	return strings.HasPrefix(cases.Lower(language.Und).String(text), TriggerWord)
}
