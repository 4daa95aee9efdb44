package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{
			name: "identical URLs",
			a:    "https://example.com/cat.png",
			b:    "https://example.com/cat.png",
			same: true,
		},
		{
			name: "case differences collapse",
			a:    "https://Example.COM/Cat.PNG",
			b:    "https://example.com/cat.png",
			same: true,
		},
		{
			name: "surrounding whitespace collapses",
			a:    "  https://example.com/cat.png\n",
			b:    "https://example.com/cat.png",
			same: true,
		},
		{
			name: "different paths differ",
			a:    "https://example.com/cat.png",
			b:    "https://example.com/dog.png",
			same: false,
		},
		{
			name: "different query strings differ",
			a:    "https://example.com/cat.png?size=1",
			b:    "https://example.com/cat.png?size=2",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fpA := Fingerprint(tt.a)
			fpB := Fingerprint(tt.b)

			// Hex SHA-256 digest
			assert.Len(t, fpA, 64)
			assert.Len(t, fpB, 64)

			if tt.same {
				assert.Equal(t, fpA, fpB)
			} else {
				assert.NotEqual(t, fpA, fpB)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a.png", NormalizeURL("  https://example.com/a.png  "))
	// Case is preserved; only the fingerprint lowercases.
	assert.Equal(t, "https://Example.com/A.png", NormalizeURL("https://Example.com/A.png"))
}

func TestCanTransition(t *testing.T) {
	statuses := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

	legal := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := legal[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			j := &Job{Status: tt.status}
			assert.Equal(t, tt.terminal, j.Terminal())
		})
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{"pending", "processing", "completed", "failed"} {
		assert.True(t, ValidStatus(s), s)
	}
	for _, s := range []string{"", "PENDING", "done", "cancelled"} {
		assert.False(t, ValidStatus(s), s)
	}
}

func TestValidDuplicateMode(t *testing.T) {
	for _, m := range []string{"allow-retry", "reuse-completed", "reject-active"} {
		assert.True(t, ValidDuplicateMode(m), m)
	}
	for _, m := range []string{"", "reuse", "reject_active", "ALLOW-RETRY"} {
		assert.False(t, ValidDuplicateMode(m), m)
	}
}
