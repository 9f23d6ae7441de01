// Writer selection for STDOUT output
package sim

import (
	"os"

	"golang.org/x/term"
)

// NewStdoutWriter returns a colorized writer when STDOUT is a terminal and
// a JSON lines writer otherwise.
func NewStdoutWriter() StateWriter {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return NewColorStdoutWriter()
	}
	return NewJSONStdoutWriter()
}
