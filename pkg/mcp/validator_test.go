package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrelay/pkg/llmerrors"
)

func TestValidateToolInputAcceptsPlainArguments(t *testing.T) {
	v := NewValidator(DefaultValidationConfig())
	err := v.ValidateToolInput("search", map[string]any{"query": "weather in paris"}, "")
	assert.NoError(t, err)
}

func TestValidateToolInputRejectsOversizedInput(t *testing.T) {
	v := NewValidator(ValidationConfig{MaxInputSize: 16})
	err := v.ValidateToolInput("search", map[string]any{"query": strings.Repeat("x", 100)}, "")
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindValidation, llmerrors.KindOf(err))
}

func TestValidateToolInputRejectsExcessiveNesting(t *testing.T) {
	v := NewValidator(ValidationConfig{MaxNestingDepth: 2})
	nested := map[string]any{"a": map[string]any{"b": map[string]any{"c": map[string]any{"d": 1}}}}
	err := v.ValidateToolInput("search", nested, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting depth")
}

func TestValidateToolInputRejectsScriptContent(t *testing.T) {
	v := NewValidator(DefaultValidationConfig())
	err := v.ValidateToolInput("render", map[string]any{"html": "<script>alert(1)</script>"}, "")
	require.Error(t, err)
}

func TestValidateToolInputAllowsHTMLWhenConfigured(t *testing.T) {
	cfg := DefaultValidationConfig()
	cfg.AllowHTML = true
	v := NewValidator(cfg)
	err := v.ValidateToolInput("render", map[string]any{"html": "<b>bold</b>"}, "")
	assert.NoError(t, err)
}

func TestValidateToolInputRejectsSQLInjectionAttempt(t *testing.T) {
	v := NewValidator(DefaultValidationConfig())
	err := v.ValidateToolInput("query", map[string]any{"sql": "SELECT * FROM users; DROP TABLE users;"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQL")
}

func TestValidateToolInputEnforcesPerClientRateLimit(t *testing.T) {
	v := NewValidator(ValidationConfig{RateLimitPerMinute: 2, MaxInputSize: 1024, MaxNestingDepth: 10})
	require.NoError(t, v.ValidateToolInput("t", map[string]any{}, "client-1"))
	require.NoError(t, v.ValidateToolInput("t", map[string]any{}, "client-1"))
	err := v.ValidateToolInput("t", map[string]any{}, "client-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestValidateToolInputRateLimitIsPerClient(t *testing.T) {
	v := NewValidator(ValidationConfig{RateLimitPerMinute: 1, MaxInputSize: 1024, MaxNestingDepth: 10})
	require.NoError(t, v.ValidateToolInput("t", map[string]any{}, "client-a"))
	require.NoError(t, v.ValidateToolInput("t", map[string]any{}, "client-b"), "a different client must not be limited by client-a's usage")
}

func TestSanitizeStripsTagsAndEscapes(t *testing.T) {
	out := Sanitize("<b>Hello & <i>World</i></b>", 0)
	assert.Equal(t, "Hello &amp; World", out)
}

func TestSanitizeTruncatesToMaxLen(t *testing.T) {
	out := Sanitize("hello world", 5)
	assert.Equal(t, "hello", out)
}
