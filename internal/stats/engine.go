// Package stats implements the two-proportion z-test that decides
// experiments: conversion rates, significance, confidence intervals,
// required sample size, achieved power and a stop/continue recommendation.
// Everything here is a pure function of the counters passed in; degenerate
// inputs produce neutral results instead of errors so reporting surfaces
// always have something to render.
package stats

import "math"

type Recommendation string

const (
	Continue     Recommendation = "continue"
	StopWinnerA  Recommendation = "stop_winner_a"
	StopWinnerB  Recommendation = "stop_winner_b"
	Inconclusive Recommendation = "inconclusive"
)

// practicalBand is the rate-difference band considered practically
// irrelevant: a confidence interval entirely inside it means the variants
// are equivalent for business purposes.
const practicalBand = 0.02

type Params struct {
	ConfidenceLevel         float64 // percent, e.g. 95
	MinimumDetectableEffect float64 // absolute rate delta the test should detect
	Power                   float64 // target statistical power, 0-1
}

func DefaultParams() Params {
	return Params{
		ConfidenceLevel:         95,
		MinimumDetectableEffect: 0.10,
		Power:                   0.80,
	}
}

// withDefaults fills zero-valued fields so partially specified params
// behave like DefaultParams.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.ConfidenceLevel <= 0 {
		p.ConfidenceLevel = d.ConfidenceLevel
	}
	if p.MinimumDetectableEffect <= 0 {
		p.MinimumDetectableEffect = d.MinimumDetectableEffect
	}
	if p.Power <= 0 {
		p.Power = d.Power
	}
	return p
}

// Result is the full statistical readout for one experiment. Derived, never
// stored as authoritative state.
type Result struct {
	VisitorsA    int64 `json:"visitors_a"`
	ConversionsA int64 `json:"conversions_a"`
	VisitorsB    int64 `json:"visitors_b"`
	ConversionsB int64 `json:"conversions_b"`

	RateA        float64 `json:"rate_a"`
	RateB        float64 `json:"rate_b"`
	Difference   float64 `json:"difference"`
	RelativeLift float64 `json:"relative_lift"`

	PooledRate    float64 `json:"pooled_rate"`
	StandardError float64 `json:"standard_error"`
	ZScore        float64 `json:"z_score"`
	PValue        float64 `json:"p_value"`
	Significant   bool    `json:"significant"`

	ConfidenceLevel float64 `json:"confidence_level"`
	CILower         float64 `json:"ci_lower"`
	CIUpper         float64 `json:"ci_upper"`

	RequiredSampleSize int64   `json:"required_sample_size"`
	AchievedPower      float64 `json:"achieved_power"`

	Recommendation Recommendation `json:"recommendation"`
}

// Calculate runs the two-proportion z-test for the given counters.
//
// Zero visitors in either arm never divides by zero: the result degrades to
// z=0, p=1, recommendation=continue.
func Calculate(visitorsA, conversionsA, visitorsB, conversionsB int64, params Params) Result {
	p := params.withDefaults()

	r := Result{
		VisitorsA:       visitorsA,
		ConversionsA:    conversionsA,
		VisitorsB:       visitorsB,
		ConversionsB:    conversionsB,
		ConfidenceLevel: p.ConfidenceLevel,
		PValue:          1,
	}

	if visitorsA > 0 {
		r.RateA = clamp01(float64(conversionsA) / float64(visitorsA))
	}
	if visitorsB > 0 {
		r.RateB = clamp01(float64(conversionsB) / float64(visitorsB))
	}
	r.Difference = r.RateB - r.RateA
	if r.RateA > 0 {
		r.RelativeLift = r.Difference / r.RateA
	}

	alpha := (100 - p.ConfidenceLevel) / 100
	zCrit := CriticalZ(p.ConfidenceLevel)

	if visitorsA > 0 && visitorsB > 0 {
		r.PooledRate = float64(conversionsA+conversionsB) / float64(visitorsA+visitorsB)

		invN := (1/float64(visitorsA) + 1/float64(visitorsB)) / 2
		r.StandardError = math.Sqrt(r.PooledRate * (1 - r.PooledRate) * invN)

		if r.StandardError > 0 {
			r.ZScore = r.Difference / r.StandardError
			r.PValue = clamp01(2 * (1 - NormalCDF(math.Abs(r.ZScore))))
		}

		// CI on the rate difference uses the unpooled variance.
		ciSE := math.Sqrt(r.RateA*(1-r.RateA)/float64(visitorsA) + r.RateB*(1-r.RateB)/float64(visitorsB))
		r.CILower = r.Difference - zCrit*ciSE
		r.CIUpper = r.Difference + zCrit*ciSE

		if r.StandardError > 0 {
			r.AchievedPower = clamp01(1 - NormalCDF(zCrit-math.Abs(r.Difference)/r.StandardError))
		}
	}

	r.Significant = r.PValue < alpha
	r.RequiredSampleSize = requiredSampleSize(r.RateA, p.MinimumDetectableEffect, alpha, p.Power)
	r.Recommendation = recommend(r)
	return r
}

// requiredSampleSize returns the per-arm sample size needed to detect an
// absolute rate lift of mde over the baseline at the given alpha and power.
func requiredSampleSize(baseline, mde, alpha, power float64) int64 {
	if mde <= 0 {
		return 0
	}
	target := baseline + mde
	if target > 1 {
		target = 1
	}
	delta := target - baseline
	if delta <= 0 {
		return 0
	}

	zAlpha := Quantile(1 - alpha/2)
	zBeta := Quantile(power)
	pBar := (baseline + target) / 2

	n := (zAlpha + zBeta) * (zAlpha + zBeta) * 2 * pBar * (1 - pBar) / (delta * delta)
	return int64(math.Ceil(n))
}

// recommend applies the decision policy in priority order: sample adequacy
// first, then significance, then practical equivalence.
func recommend(r Result) Recommendation {
	minVisitors := r.VisitorsA
	if r.VisitorsB < minVisitors {
		minVisitors = r.VisitorsB
	}
	if float64(minVisitors) < 0.8*float64(r.RequiredSampleSize) {
		return Continue
	}
	if r.Significant {
		if r.RateB > r.RateA {
			return StopWinnerB
		}
		return StopWinnerA
	}
	if r.CILower >= -practicalBand && r.CIUpper <= practicalBand {
		return Inconclusive
	}
	return Continue
}
