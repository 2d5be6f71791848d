package openapimock

import (
	"net/url"
	"sort"
	"strings"
)

// Signature builds the lookup key `METHOD:path?k1=v1&k2=v2…` with query
// keys lexicographically sorted (spec.md §4.4).
func Signature(method, path string, query url.Values) string {
	sig := strings.ToUpper(method) + ":" + path
	if len(query) == 0 {
		return sig
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		for _, v := range query[k] {
			parts = append(parts, k+"="+v)
		}
	}
	return sig + "?" + strings.Join(parts, "&")
}
