package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAnswerPlainText(t *testing.T) {
	assert.Equal(t, "use df -h", ExtractAnswer("  use df -h\n"))
}

func TestExtractAnswerJSONFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"directAnswer", `{"directAnswer": "run ls -la"}`, "run ls -la"},
		{"response", `{"response": "check /var/log"}`, "check /var/log"},
		{"message", `{"message": "restart the service"}`, "restart the service"},
		{"output", `{"output": "done"}`, "done"},
		{"precedence", `{"output": "b", "directAnswer": "a"}`, "a"},
		{"error field", `{"error": "rate limited"}`, "Error: rate limited"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractAnswer(tc.raw))
		})
	}
}

func TestExtractAnswerMalformedJSONFallsBack(t *testing.T) {
	raw := `{"directAnswer": "unterminated`
	assert.Equal(t, raw, ExtractAnswer(raw))
}

func TestExtractAnswerJSONWithoutKnownFields(t *testing.T) {
	raw := `{"unknown": 42}`
	assert.Equal(t, raw, ExtractAnswer(raw))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(context.DeadlineExceeded))
	assert.False(t, isRetryable(errors.New("bad request")))
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}
