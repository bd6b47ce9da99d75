package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Validation failure or a run that ended in error
	ExitCommandError = 2 // Bad configuration, unreadable database, unreachable Discord
)

// Error codes reported in JSON output.
const (
	ErrCodeConfig   = "E001"
	ErrCodeStore    = "E002"
	ErrCodeRules    = "E003"
	ErrCodeDiscord  = "E004"
	ErrCodeNotFound = "E005"
)

// ExitError carries the process exit code for a failed command.
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, ExitFailure when err
// carries none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope for command output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a JSON response.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w}
}

// Success writes data. Text output relies on data's String method.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Fail reports a failure and returns the matching ExitError.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error, details any) error {
	if f.Format == "json" {
		msg := message
		if err != nil {
			msg = fmt.Sprintf("%s: %v", message, err)
		}
		if encErr := f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: msg, Details: details},
		}); encErr != nil {
			slog.Error("write error response", "error", encErr)
		}
	} else {
		if err != nil {
			fmt.Fprintf(f.Writer, "Error [%s]: %s: %v\n", code, message, err)
		} else {
			fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
		}
	}
	return WrapExitError(exitCode, fmt.Sprintf("%s: %s", code, message), err)
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
