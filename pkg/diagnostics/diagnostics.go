// Package diagnostics implements DiagnosticsEngine (spec.md §4.9): the
// classify -> signature -> lookup-or-create flow over a KnowledgeStore,
// plus confidence updates driven by reported fix outcomes.
package diagnostics

import (
	"time"

	"github.com/rs/xid"

	"github.com/argusci/argus/pkg/classifier"
	"github.com/argusci/argus/pkg/knowledge"
)

// alpha is the exponential-weighted-average smoothing factor for
// confidence updates (spec.md §4.9).
const alpha = 0.7

// seedConfidence is the initial confidence assigned to a freshly-learned
// pattern.
const seedConfidence = 0.33

// Diagnosis is the result of diagnosing a single failure.
type Diagnosis struct {
	Pattern      knowledge.FailurePattern
	SuggestedFix string
	Confidence   float64
	FixHistory   []knowledge.FixRecord
	IsNewPattern bool
}

// Engine ties a Chain and a Store together.
type Engine struct {
	chain classifier.Chain
	store *knowledge.Store
}

// New constructs a DiagnosticsEngine over store using classifier.DefaultChain.
func New(store *knowledge.Store) *Engine {
	return &Engine{chain: classifier.DefaultChain(), store: store}
}

// NewWithChain constructs a DiagnosticsEngine over a custom rule chain,
// for callers layering project-specific classification rules.
func NewWithChain(store *knowledge.Store, chain classifier.Chain) *Engine {
	return &Engine{chain: chain, store: store}
}

// Diagnose classifies in, synthesizes its signature, and looks it up in
// the knowledge store, creating a learned pattern on first sighting. A
// miss on the exact signature falls back to the category's seeded
// built-in pattern (signature `builtin::<CATEGORY>`) before falling
// through to creating a brand-new learned pattern -- this is why an
// unseen failure whose category has a built-in still reports
// isNewPattern=false on its very first sighting.
func (e *Engine) Diagnose(in classifier.Input) (*Diagnosis, error) {
	category := e.chain.Classify(in)
	sig := classifier.Signature(category, in.SuiteID, in.Error)

	pattern, err := e.store.FindBySignature(sig)
	if err != nil {
		if builtin, builtinErr := e.store.FindBySignature(knowledge.BuiltInSignature(string(category))); builtinErr == nil {
			pattern, err = builtin, nil
		}
	}
	now := time.Now()

	if err == nil {
		pattern.Occurrences++
		pattern.LastSeen = now
		if err := e.store.Put(*pattern); err != nil {
			return nil, err
		}
		history, err := e.store.FixHistory(pattern.ID)
		if err != nil {
			return nil, err
		}
		return &Diagnosis{
			Pattern:      *pattern,
			SuggestedFix: pattern.SuggestedFix,
			Confidence:   pattern.Confidence,
			FixHistory:   history,
			IsNewPattern: false,
		}, nil
	}

	learned := knowledge.FailurePattern{
		ID:          xid.New().String(),
		Category:    string(category),
		Signature:   sig,
		Source:      knowledge.SourceLearned,
		Confidence:  seedConfidence,
		Occurrences: 1,
		FirstSeen:   now,
		LastSeen:    now,
		Created:     now,
	}
	if err := e.store.Put(learned); err != nil {
		return nil, err
	}

	return &Diagnosis{
		Pattern:      learned,
		SuggestedFix: "",
		Confidence:   learned.Confidence,
		IsNewPattern: true,
	}, nil
}

// clamp01 restricts v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ReportFix records a fix attempt and updates the pattern's confidence by
// an exponentially-weighted success ratio (spec.md §4.9).
func (e *Engine) ReportFix(patternID, runID, caseName, description string, success bool) error {
	pattern, err := e.store.Get(patternID)
	if err != nil {
		return err
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	pattern.Confidence = clamp01(alpha*pattern.Confidence + (1-alpha)*outcome)
	if success {
		pattern.Resolutions++
	}
	if err := e.store.Put(*pattern); err != nil {
		return err
	}

	return e.store.SaveFix(knowledge.FixRecord{
		PatternID:   patternID,
		RunID:       runID,
		CaseName:    caseName,
		Description: description,
		Success:     success,
	})
}
