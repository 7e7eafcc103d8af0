// Package engine contains the request-path components of the experiment
// system: URL-based experiment lookup, idempotent variant assignment,
// conversion recording and the periodic auto-analyzer.
package engine

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/splitpilot/splitpilot/internal/store"
)

// Registry resolves which active experiment, if any, applies to a URL.
type Registry struct {
	store store.Store
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

// FindActive returns the first active experiment matching the URL, in
// creation order, or nil when none matches. No match is a valid outcome,
// not an error. Overlapping experiments are a configuration discipline for
// callers; the registry just takes the first hit.
func (r *Registry) FindActive(ctx context.Context, url string) (*store.Experiment, error) {
	experiments, err := r.store.ListActiveExperiments(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "registry: list active experiments")
	}
	for _, exp := range experiments {
		if matchURL(url, exp.URL, exp.MatchType) {
			return exp, nil
		}
	}
	return nil, nil
}

func matchURL(url, pattern string, mt store.MatchType) bool {
	switch mt {
	case store.MatchExact:
		return url == pattern
	case store.MatchPattern:
		re, err := regexp.Compile(wildcardToRegex(pattern))
		if err != nil {
			return false
		}
		return re.MatchString(url)
	case store.MatchRegex:
		// A malformed stored pattern must not take down the lookup path;
		// it simply never matches.
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(url)
	default:
		return false
	}
}

// wildcardToRegex translates a glob-style pattern to an anchored regular
// expression: * matches any substring, every other character (including ?)
// is literal.
func wildcardToRegex(pattern string) string {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}
