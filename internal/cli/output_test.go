package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(BackfillResult{Channels: 2, Created: 10})
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   BackfillResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Channels)
	assert.Equal(t, 10, resp.Data.Created)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(BackfillResult{Channels: 2, Pages: 3, Created: 10, Updated: 1}))
	assert.Equal(t, "Scanned 2 channel(s) in 3 page(s): 10 new, 1 updated, 0 failed\n", buf.String())
}

func TestOutputFormatter_JSONFail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := errors.New("disk full")
	err := formatter.Fail(ExitCommandError, ErrCodeStore, "open database", cause, map[string]string{"path": "x.db"})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStore, resp.Error.Code)
	assert.Equal(t, "open database: disk full", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextFail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail(ExitFailure, ErrCodeRules, "bad rules", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "Error [E003]: bad rules\n", buf.String())
	assert.Equal(t, "E003: bad rules", err.Error())
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := WrapExitError(ExitFailure, "engine error", cause)
	assert.Equal(t, "engine error: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestResultText(t *testing.T) {
	rec := ReconcileResult{Members: 3, SessionsOpened: 1, FailedPhases: []string{"voice"}}
	assert.Contains(t, rec.String(), "Reconciled 3 member(s)")
	assert.Contains(t, rec.String(), "failed phases:        voice")

	imp := ImportResult{Rules: map[string]int64{"b": 2, "a": 1}}
	assert.Equal(t, "Imported 2 rule(s) and 0 season(s): a, b", imp.String())

	assert.Equal(t, "Rule x enabled", ToggleResult{Name: "x", Enabled: true}.String())
	assert.Equal(t, "No rules defined", RuleList(nil).String())
}
