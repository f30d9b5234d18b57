package cli

import (
	"fmt"
	"io"

	okrerrors "github.com/randalmurphal/okr/internal/errors"
)

// PrintError prints an error with the user-friendly format when it is an
// EngineError, and a plain message otherwise. With --json it writes the
// error object instead.
func PrintError(w io.Writer, err error) {
	if jsonOut {
		printJSONError(w, err)
		return
	}
	if engErr := okrerrors.AsEngineError(err); engErr != nil {
		_, _ = fmt.Fprintln(w, engErr.UserMessage())
		if verbose {
			_, _ = fmt.Fprintf(w, "\nCode: %s\n", engErr.Code)
			if engErr.Cause != nil {
				_, _ = fmt.Fprintf(w, "Cause: %v\n", engErr.Cause)
			}
		}
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

func printJSONError(w io.Writer, err error) {
	var body any = map[string]string{"code": "ERROR", "what": err.Error()}
	if engErr := okrerrors.AsEngineError(err); engErr != nil {
		body = engErr
	}
	if werr := writeJSON(w, map[string]any{"error": body}); werr != nil {
		_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	}
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if engErr := okrerrors.AsEngineError(err); engErr != nil {
		return engErr.Category().ExitCode()
	}
	return 1
}
