package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/ordersync/internal/syncerr"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // trigger saw an entity error, scenario assertion failed, order or checkpoint missing
	ExitCommandError = 2 // bad arguments, unreadable config, store or redis not reachable
)

// ExitError carries the exit code a command wants ordersync to end with.
// trigger, checkpoint, order and scenario return one instead of printing
// their own failures; Execute renders it and exits with Code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the ExitError in err's chain, or
// ExitFailure for any other error.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode is the machine-readable code reported for err: the sync error
// code when one is in the chain, else COMMAND_ERROR or FAILURE by exit code.
func ErrorCode(err error) string {
	if code := syncerr.CodeOf(err); code != "" {
		return string(code)
	}
	if GetExitCode(err) == ExitCommandError {
		return "COMMAND_ERROR"
	}
	return "FAILURE"
}

// Response is the envelope written by --format json.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command. Entity and sequence id are set
// when the failure names an order event.
type ResponseError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	EntityID   string `json:"entityId,omitempty"`
	SequenceID int64  `json:"sequenceId,omitempty"`
}

// OutputFormatter writes command results as text or as a JSON Response.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; falls back to Writer
	Verbose   bool
}

// Success writes data. In text mode render produces the human-readable
// form; a nil render prints data with %v.
func (f *OutputFormatter) Success(data any, render func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	if render != nil {
		render(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Fail reports a command error. JSON mode writes an error Response to
// Writer so scripts read one document either way; text mode writes a
// single line to ErrWriter.
func (f *OutputFormatter) Fail(err error) error {
	resp := &ResponseError{Code: ErrorCode(err), Message: err.Error()}
	var serr *syncerr.Error
	if errors.As(err, &serr) {
		resp.EntityID = serr.EntityID
		resp.SequenceID = serr.Seq
	}

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "error", Error: resp})
	}
	_, werr := fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", resp.Code, resp.Message)
	return werr
}

// VerboseLog writes a diagnostic line to ErrWriter when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
