package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDefaultChainPrecedence exercises all ten categories and confirms
// the chain stops at its first match even when a later rule's pattern
// is also present in the input (spec.md §4.8: rules are evaluated in a
// fixed order, first match wins).
func TestDefaultChainPrecedence(t *testing.T) {
	chain := DefaultChain()

	cases := []struct {
		name string
		in   Input
		want Category
	}{
		{
			name: "oom wins over container crash and timeout",
			in:   Input{OOMKilled: true, ContainerStatus: "exited", Error: "request timed out"},
			want: ContainerOOM,
		},
		{
			name: "container crash wins over connection refused",
			in:   Input{ContainerStatus: "exited", Error: "connection refused"},
			want: ContainerCrash,
		},
		{
			name: "connection refused wins over timeout",
			in:   Input{Error: "connection refused, then timed out"},
			want: ConnectionRefused,
		},
		{
			name: "timeout wins over mock mismatch",
			in:   Input{Error: "request timed out waiting for mock mismatch"},
			want: Timeout,
		},
		{
			name: "mock mismatch wins over config error",
			in:   Input{Error: "mock mismatch: configuration error downstream"},
			want: MockMismatch,
		},
		{
			name: "config error wins over network error",
			in:   Input{Error: "configuration error: network unreachable"},
			want: ConfigError,
		},
		{
			name: "network error wins over http error",
			in:   Input{Error: "network unreachable, got 500"},
			want: NetworkError,
		},
		{
			name: "http error wins over assertion mismatch",
			in:   Input{Error: "expected 200 but got 500"},
			want: HTTPError,
		},
		{
			name: "assertion mismatch is the catch-all for a non-empty error",
			in:   Input{Error: "expected foo, got bar"},
			want: AssertionMismatch,
		},
		{
			name: "unknown when nothing matches",
			in:   Input{},
			want: Unknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, chain.Classify(tc.in))
		})
	}
}

// TestNormalizeIsIdempotent confirms spec.md §8 invariant 7: normalizing
// an already-normalized string is a no-op, since every substitution
// target (path, uuid, numeric id) is replaced by a placeholder that
// itself never matches any of the three patterns again.
func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"failed at /var/log/app/123 with id 550e8400-e29b-41d4-a716-446655440000",
		"no special chars here",
		"/srv/42/data did not respond",
		"  extra   whitespace   around  123  ",
		"already <path> has <id> and <n> placeholders",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "Normalize(%q) was not idempotent: %q vs %q", in, once, twice)
	}
}

func TestNormalizeRedactsPathsIDsAndNumbers(t *testing.T) {
	out := Normalize("GET /api/v1/users/550e8400-e29b-41d4-a716-446655440000 returned 42 rows from /data/shard7")
	assert.NotContains(t, out, "550e8400")
	assert.NotContains(t, out, "/api/v1/users")
	assert.Contains(t, out, "<id>")
	assert.Contains(t, out, "<path>")
}

func TestSignatureTruncatesLongSnippets(t *testing.T) {
	longErr := ""
	for i := 0; i < 50; i++ {
		longErr += "assertion failed unexpectedly here "
	}

	sig := Signature(AssertionMismatch, "suite-1", longErr)
	assert.Less(t, len(sig), len(longErr))
	assert.Contains(t, sig, "ASSERTION_MISMATCH::suite-1::")
}
