// Package classifier implements the ordered failure-classification rule
// chain and signature synthesis of spec.md §4.8. There is no teacher
// analogue for this (testground has no failure-classification layer); it
// is grounded on the teacher's general preference for small, composable,
// explicitly-ordered pure functions (e.g. the healthcheck Enlist chain)
// rather than on any one borrowed file.
package classifier

import (
	"regexp"
	"strings"
)

// Category is one of the ten failure categories of spec.md §4.8.
type Category string

const (
	AssertionMismatch Category = "ASSERTION_MISMATCH"
	HTTPError         Category = "HTTP_ERROR"
	Timeout           Category = "TIMEOUT"
	ConnectionRefused Category = "CONNECTION_REFUSED"
	ContainerOOM      Category = "CONTAINER_OOM"
	ContainerCrash    Category = "CONTAINER_CRASH"
	MockMismatch      Category = "MOCK_MISMATCH"
	ConfigError       Category = "CONFIG_ERROR"
	NetworkError      Category = "NETWORK_ERROR"
	Unknown           Category = "UNKNOWN"
)

// Input is the evidence a Rule inspects.
type Input struct {
	RunID           string
	CaseName        string
	SuiteID         string
	Error           string
	Status          string
	ContainerStatus string
	OOMKilled       bool
	Diagnostics     string
}

// Rule maps an Input to a Category, or reports no match via ok=false.
type Rule func(in Input) (Category, bool)

// Chain is an ordered list of rules; the first match wins.
type Chain []Rule

// DefaultChain is the built-in rule chain described in spec.md §4.8.
func DefaultChain() Chain {
	return Chain{
		ruleOOM,
		ruleContainerCrash,
		ruleConnectionRefused,
		ruleTimeout,
		ruleMockMismatch,
		ruleConfigError,
		ruleNetworkError,
		ruleHTTPError,
		ruleAssertionMismatch,
	}
}

// Classify runs in through c in order, returning the first matching
// Category, or Unknown if nothing matches.
func (c Chain) Classify(in Input) Category {
	for _, rule := range c {
		if cat, ok := rule(in); ok {
			return cat
		}
	}
	return Unknown
}

func ruleOOM(in Input) (Category, bool) {
	if in.OOMKilled {
		return ContainerOOM, true
	}
	return "", false
}

func ruleContainerCrash(in Input) (Category, bool) {
	if in.ContainerStatus == "exited" || in.ContainerStatus == "dead" {
		return ContainerCrash, true
	}
	return "", false
}

var reConnectionRefused = regexp.MustCompile(`(?i)connection refused|ECONNREFUSED`)

func ruleConnectionRefused(in Input) (Category, bool) {
	if reConnectionRefused.MatchString(in.Error) {
		return ConnectionRefused, true
	}
	return "", false
}

var reTimeout = regexp.MustCompile(`(?i)timed? ?out|deadline exceeded|ETIMEDOUT`)

func ruleTimeout(in Input) (Category, bool) {
	if reTimeout.MatchString(in.Error) {
		return Timeout, true
	}
	return "", false
}

var reMockMismatch = regexp.MustCompile(`(?i)mock (mismatch|not found)|no recording for signature|unexpected request to mock`)

func ruleMockMismatch(in Input) (Category, bool) {
	if reMockMismatch.MatchString(in.Error) {
		return MockMismatch, true
	}
	return "", false
}

var reConfigError = regexp.MustCompile(`(?i)config(uration)? (error|invalid)|schema validation failed`)

func ruleConfigError(in Input) (Category, bool) {
	if reConfigError.MatchString(in.Error) {
		return ConfigError, true
	}
	return "", false
}

var reNetworkError = regexp.MustCompile(`(?i)network unreachable|no route to host|dns|EAI_AGAIN`)

func ruleNetworkError(in Input) (Category, bool) {
	if reNetworkError.MatchString(in.Error) {
		return NetworkError, true
	}
	return "", false
}

var reHTTPError = regexp.MustCompile(`(?i)\b[45]\d{2}\b|http error`)

func ruleHTTPError(in Input) (Category, bool) {
	if reHTTPError.MatchString(in.Error) {
		return HTTPError, true
	}
	return "", false
}

func ruleAssertionMismatch(in Input) (Category, bool) {
	if in.Error != "" {
		return AssertionMismatch, true
	}
	return "", false
}

var (
	rePath       = regexp.MustCompile(`(?:/[\w.\-]+)+`)
	reNumericID  = regexp.MustCompile(`\b\d+\b`)
	reUUID       = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Normalize redacts absolute paths, numeric ids, and UUIDs from an error
// message, then collapses whitespace, so that signatures group equivalent
// failures (spec.md §4.8). It is a retraction: Normalize(Normalize(x)) ==
// Normalize(x) (spec.md §8 invariant 7), since every substitution target
// is also replaced by the placeholder that would survive a second pass.
func Normalize(errText string) string {
	out := reUUID.ReplaceAllString(errText, "<id>")
	out = rePath.ReplaceAllString(out, "<path>")
	out = reNumericID.ReplaceAllString(out, "<n>")
	out = reWhitespace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Signature synthesizes the knowledge-store lookup key
// "<category>::<suiteId>::<normalized-snippet>" (spec.md §4.8), truncating
// the normalized snippet to keep signatures stable and short.
func Signature(category Category, suiteID, errText string) string {
	snippet := Normalize(errText)
	const maxSnippet = 120
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	return string(category) + "::" + suiteID + "::" + snippet
}
