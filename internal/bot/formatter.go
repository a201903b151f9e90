package bot

import (
	"fmt"
	"io"
)

const greetingPrefix = "Hello "

// Formatter builds the text the bot posts and prints.
type Formatter struct{}

// BuildGreeting returns the reply for a triggering message. mention is the
// platform's mention token for the author.
func (f *Formatter) BuildGreeting(mention string) string {
	return greetingPrefix + mention
}

// WriteIdentity prints the bot's display name and id, one per line.
func (f *Formatter) WriteIdentity(w io.Writer, name, id string) error {
	if _, err := fmt.Fprintf(w, "Username: %s\n", name); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Id: %s\n", id)
	return err
}
