package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/bnema/ha-billing/internal/application"
	"golang.org/x/term"
)

// resultError surfaces a failed application.Result as a command error while
// keeping the typed cause reachable through errors.As.
type resultError struct {
	result application.Result
}

func (e resultError) Error() string {
	return e.result.Error
}

func (e resultError) Unwrap() error {
	return e.result.Err()
}

func checkResult(result application.Result) error {
	if result.Success {
		return nil
	}
	return resultError{result: result}
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
