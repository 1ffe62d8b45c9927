package core

import (
	"fmt"
)

const (
	errorPrefix = "**cmdrun error**: "

	// EndedEarlyMessage replaces a directive whose command didn't exit
	// normally, e.g. it was killed by a signal.
	EndedEarlyMessage = "Command was ended before completing"
)

// DirectiveError is a problem with a single directive. It is rendered into
// the document rather than failing the whole book.
type DirectiveError struct {
	// Reason is a human readable explanation.
	Reason string
	// Payload is the trimmed directive text following the cmdrun keyword.
	Payload string
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("%s in 'cmdrun %s'", e.Reason, e.Payload)
}

// Render formats the error the way it appears in the output document.
func (e *DirectiveError) Render() string {
	return errorPrefix + e.Error()
}

// ExitCodeMismatch renders the replacement text for a command that exited with
// an unexpected status. The streams are included as-is, without formatting.
func ExitCodeMismatch(command string, actual, expected int, stdout, stderr []byte) string {
	return fmt.Sprintf(
		"%s'%s' returned exit code %d instead of %d.\n%s\n%s",
		errorPrefix,
		command,
		actual,
		expected,
		lossyString(stdout),
		lossyString(stderr),
	)
}
