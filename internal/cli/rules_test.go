package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franklinacm/synapse/internal/rules"
)

func TestRulesValidate(t *testing.T) {
	out, err := execute(t, "rules", "validate", filepath.Join("testdata", "rules.yaml"), "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 2 rule(s) and 0 season(s) valid")
}

func TestRulesValidate_Invalid(t *testing.T) {
	out, err := execute(t, "rules", "validate", filepath.Join("testdata", "invalid.yaml"), "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "unknown predicate type AUTHOR_IS_NOT_A_BOT")
	assert.Contains(t, out, ErrCodeRules)
}

func TestRulesValidate_InvalidJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "rules", "validate", filepath.Join("testdata", "invalid.yaml"), "--db", tempDB(t))
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRules, resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
}

func TestRulesValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "rules", "validate", filepath.Join("testdata", "missing.yaml"), "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestRulesImportAndList(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "rules", "import", filepath.Join("testdata", "rules.yaml"), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 rule(s) and 0 season(s): long-message, voice-hour")

	out, err = execute(t, "--format", "json", "rules", "list", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string   `json:"status"`
		Data   RuleList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)

	long := resp.Data[0]
	assert.Equal(t, "long-message", long.Name)
	assert.Equal(t, "MESSAGE_CREATE", long.EventType)
	assert.True(t, long.Enabled)
	assert.Equal(t, 60, long.CooldownSeconds)
	assert.Equal(t, 2, long.Predicates)
	assert.Equal(t, 1, long.Outcomes)

	out, err = execute(t, "rules", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "voice-hour")
	assert.Contains(t, out, "live,historic")
}

func TestRulesList_Empty(t *testing.T) {
	out, err := execute(t, "rules", "list", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "No rules defined")
}

func TestRulesToggle(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "rules", "import", filepath.Join("testdata", "rules.yaml"), "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "rules", "disable", "voice-hour", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Rule voice-hour disabled")

	out, err = execute(t, "--format", "json", "rules", "list", "--db", db)
	require.NoError(t, err)
	var resp struct {
		Data RuleList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.False(t, resp.Data[1].Enabled)

	out, err = execute(t, "rules", "enable", "voice-hour", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Rule voice-hour enabled")

	_, err = execute(t, "rules", "enable", "nope", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestRulesPredicates(t *testing.T) {
	out, err := execute(t, "rules", "predicates", "--db", tempDB(t))
	require.NoError(t, err)
	for _, typ := range rules.PredicateTypes() {
		assert.Contains(t, out, typ)
	}
}
