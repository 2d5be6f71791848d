// Package confighash computes the stable content hash of an E2EConfig used
// to detect configuration drift between runs (spec.md §4.16), keyed off
// the JSON form config.Validate already produces and hashed the way the
// teacher hashes composition manifests in pkg/api/composition_validation.go
// (sha256 over a canonical encoding).
package confighash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/argusci/argus/pkg/apierr"
)

// Hash returns the hex-encoded sha256 digest of cfg's canonical JSON form.
// Map keys are sorted by encoding/json by default; the canonicalization
// step here additionally strips insignificant whitespace by round-tripping
// through an ordered generic representation so that field-reordering
// changes in the config struct don't perturb the hash.
func Hash(cfg interface{}) (string, error) {
	canonical, err := canonicalize(cfg)
	if err != nil {
		return "", apierr.Wrap(apierr.ConfigError, "canonicalizing config for hashing", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	return marshalSorted(generic)
}

func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')

			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil

	case []interface{}:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			ib, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ib...)
		}
		out = append(out, ']')
		return out, nil

	default:
		return json.Marshal(val)
	}
}

// Changed reports whether two hashes differ, treating either being empty
// as "unknown" rather than "changed" -- a missing prior hash (first run)
// should not be classified as drift.
func Changed(prev, current string) bool {
	if prev == "" || current == "" {
		return false
	}
	return prev != current
}
