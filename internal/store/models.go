package store

import (
	"regexp"
	"time"

	"github.com/rotisserie/eris"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPattern MatchType = "pattern"
	MatchRegex   MatchType = "regex"
)

type Policy string

const (
	PolicyFiftyFifty  Policy = "fifty_fifty"
	PolicyAlternating Policy = "alternating"
	PolicyCustomSplit Policy = "custom_split"
)

// Experiment is a two-variant test bound to a URL. The ConversionRate and
// StatisticallySignificant fields are a snapshot written by the analyzer for
// fast reads; live counters remain the source of truth.
type Experiment struct {
	ID                string
	Name              string
	Description       string
	URL               string
	MatchType         MatchType
	Policy            Policy
	SplitA            int // percent of traffic to A, custom_split only
	VariantA          string
	VariantB          string
	MinimumSampleSize int
	ConfidenceLevel   float64 // e.g. 95
	Status            Status

	VisitsA      int64
	VisitsB      int64
	ConversionsA int64
	ConversionsB int64

	ConversionRateA          float64
	ConversionRateB          float64
	StatisticallySignificant bool

	WinnerVariant *Variant
	StartDate     *time.Time
	EndDate       *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Assignment binds a visitor to a variant for one experiment. The variant is
// immutable once created; Converted transitions false->true exactly once.
type Assignment struct {
	ExperimentID    string
	VisitorID       string
	Variant         Variant
	Converted       bool
	ConversionValue *float64
	ConversionAt    *time.Time
	CreatedAt       time.Time
}

// Counts holds per-variant totals recomputed from raw assignment rows.
type Counts struct {
	VisitsA      int64
	VisitsB      int64
	ConversionsA int64
	ConversionsB int64
}

// Validate rejects malformed experiment configuration. Called at creation
// and again at start so a draft can never go active with a broken pattern.
func (e *Experiment) Validate() error {
	if e.Name == "" {
		return eris.Wrap(ErrInvalidConfig, "name is required")
	}
	if e.URL == "" {
		return eris.Wrap(ErrInvalidConfig, "url is required")
	}
	if e.VariantA == "" || e.VariantB == "" {
		return eris.Wrap(ErrInvalidConfig, "both variant payloads are required")
	}
	switch e.MatchType {
	case MatchExact, MatchPattern:
	case MatchRegex:
		if _, err := regexp.Compile(e.URL); err != nil {
			return eris.Wrapf(ErrInvalidConfig, "url pattern does not compile: %v", err)
		}
	default:
		return eris.Wrapf(ErrInvalidConfig, "unknown match type %q", e.MatchType)
	}
	switch e.Policy {
	case PolicyFiftyFifty, PolicyAlternating:
	case PolicyCustomSplit:
		if e.SplitA < 0 || e.SplitA > 100 {
			return eris.Wrapf(ErrInvalidConfig, "split %d out of range 0-100", e.SplitA)
		}
	default:
		return eris.Wrapf(ErrInvalidConfig, "unknown assignment policy %q", e.Policy)
	}
	if e.ConfidenceLevel <= 50 || e.ConfidenceLevel >= 100 {
		return eris.Wrapf(ErrInvalidConfig, "confidence level %.1f out of range (50,100)", e.ConfidenceLevel)
	}
	if e.MinimumSampleSize < 0 {
		return eris.Wrapf(ErrInvalidConfig, "minimum sample size %d is negative", e.MinimumSampleSize)
	}
	return nil
}

// Rates returns the live conversion rates, zero when an arm has no visits.
func (e *Experiment) Rates() (rateA, rateB float64) {
	if e.VisitsA > 0 {
		rateA = float64(e.ConversionsA) / float64(e.VisitsA)
	}
	if e.VisitsB > 0 {
		rateB = float64(e.ConversionsB) / float64(e.VisitsB)
	}
	return rateA, rateB
}
