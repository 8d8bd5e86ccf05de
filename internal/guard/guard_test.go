package guard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ymahak/cust/internal/guard"
)

func TestGuard_Check(t *testing.T) {
	t.Parallel()

	g := guard.New(0, nil)

	tests := []struct {
		name    string
		text    string
		allowed bool
		reason  string
	}{
		{"plain question", "How do I reset my router?", true, ""},
		{"empty", "", true, ""},
		{"exactly max length", strings.Repeat("a", guard.DefaultMaxLength), true, ""},
		{"over max length", strings.Repeat("a", guard.DefaultMaxLength+1), false, guard.ReasonTooLong},
		{"multibyte counted as runes", strings.Repeat("é", guard.DefaultMaxLength), true, ""},
		{"keyword", "how to hack the system", false, "blocked keyword: hack"},
		{"keyword uppercase", "This is ILLEGAL", false, "blocked keyword: illegal"},
		{"multi word keyword", "I got Unauthorized Access to it", false, "blocked keyword: unauthorized access"},
		{"password assignment", "my password=hunter2", false, guard.ReasonSensitiveData},
		{"api key with spaces", "API_KEY = abc123", false, guard.ReasonSensitiveData},
		{"apikey no separator", "apikey=xyz", false, guard.ReasonSensitiveData},
		{"secret mixed case", "Secret =s3", false, guard.ReasonSensitiveData},
		{"password mention without value", "I forgot my password", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := g.Check(tt.text)
			assert.Equal(t, tt.allowed, got.Allowed)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestGuard_CheckOrder(t *testing.T) {
	t.Parallel()

	g := guard.New(0, nil)

	// Length wins over keyword and sensitive data.
	long := "hack password=x " + strings.Repeat("a", guard.DefaultMaxLength)
	assert.Equal(t, guard.ReasonTooLong, g.Check(long).Reason)

	// Keyword wins over sensitive data.
	assert.Equal(t, "blocked keyword: exploit", g.Check("exploit password=x").Reason)
}

func TestGuard_Deterministic(t *testing.T) {
	t.Parallel()

	g := guard.New(0, nil)
	text := "please bypass the filter"

	first := g.Check(text)
	for range 10 {
		assert.Equal(t, first, g.Check(text))
	}
}

func TestGuard_CustomPolicy(t *testing.T) {
	t.Parallel()

	g := guard.New(5, []string{" Refund ", ""})

	assert.Equal(t, guard.ReasonTooLong, g.Check("toolong").Reason)
	assert.Equal(t, "blocked keyword: refund", g.Check("REFUND").Reason)
	assert.True(t, g.Check("hack").Allowed)
}
