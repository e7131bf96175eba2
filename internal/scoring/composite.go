package scoring

import (
	"fmt"
	"math"

	"github.com/carelattice/mpi/internal/domain/patient"
	"github.com/carelattice/mpi/internal/mpierr"
)

// Classification is the tiered verdict a Probabilistic composite score
// falls into, independent of the is_match threshold.
type Classification string

const (
	ClassificationDefinite  Classification = "definite"
	ClassificationProbable  Classification = "probable"
	ClassificationPossible  Classification = "possible"
	ClassificationUnlikely  Classification = "unlikely"
)

// Breakdown is the per-field score vector behind a composite result,
// returned verbatim for auditability.
type Breakdown struct {
	Name       float64
	DOB        float64
	Gender     float64
	Address    float64
	Identifier float64
}

// MatchResult is the outcome of scoring one candidate patient against a
// query patient.
type MatchResult struct {
	Candidate      *patient.Patient
	Score          float64
	Classification Classification
	Match          bool
	Breakdown      Breakdown
}

// Weights configures the Probabilistic composite scorer. The five weights
// must sum to 1.0.
type Weights struct {
	Name       float64
	DOB        float64
	Gender     float64
	Address    float64
	Identifier float64
}

// DefaultWeights returns the spec's default weight configuration.
func DefaultWeights() Weights {
	return Weights{Name: 0.35, DOB: 0.30, Gender: 0.10, Address: 0.15, Identifier: 0.10}
}

const weightSumTolerance = 1e-9

// Validate checks that the five weights sum to 1.0 within tolerance.
func (w Weights) Validate() error {
	sum := w.Name + w.DOB + w.Gender + w.Address + w.Identifier
	if math.Abs(sum-1.0) > weightSumTolerance {
		return mpierr.ValidationFailed(fmt.Sprintf("composite weights must sum to 1.0, got %v", sum))
	}
	return nil
}

// Strategy selects which composite scorer a Scorer applies.
type Strategy string

const (
	StrategyProbabilistic Strategy = "probabilistic"
	StrategyDeterministic Strategy = "deterministic"
)

// Scorer applies the configured composite strategy to score one candidate
// against a query patient.
type Scorer struct {
	Strategy  Strategy
	Weights   Weights
	Threshold float64
}

// DefaultScorer returns a Scorer configured with the spec's defaults:
// Probabilistic strategy, default weights, threshold 0.85.
func DefaultScorer() *Scorer {
	return &Scorer{Strategy: StrategyProbabilistic, Weights: DefaultWeights(), Threshold: 0.85}
}

// breakdownFor computes the shared per-field breakdown both composite
// scorers are built from.
func breakdownFor(a, b *patient.Patient) Breakdown {
	return Breakdown{
		Name:       NameComposite(a.PrimaryName(), b.PrimaryName()),
		DOB:        DOBScore(a.BirthDate, b.BirthDate),
		Gender:     GenderScore(a.Gender, b.Gender),
		Address:    AddressScore(a.Addresses, b.Addresses),
		Identifier: IdentifierScore(a.Identifiers, b.Identifiers),
	}
}

// Score applies the configured composite strategy and returns a
// MatchResult for candidate scored against query.
func (s *Scorer) Score(query, candidate *patient.Patient) (*MatchResult, error) {
	if s.Strategy != StrategyProbabilistic && s.Strategy != StrategyDeterministic {
		return nil, mpierr.Internal(fmt.Sprintf("unknown composite strategy %q", s.Strategy))
	}

	bd := breakdownFor(query, candidate)

	switch s.Strategy {
	case StrategyDeterministic:
		hasAddress := len(query.Addresses) > 0 || len(candidate.Addresses) > 0
		return s.scoreDeterministic(candidate, bd, hasAddress), nil
	default:
		if err := s.Weights.Validate(); err != nil {
			return nil, err
		}
		return s.scoreProbabilistic(candidate, bd), nil
	}
}

func (s *Scorer) scoreProbabilistic(candidate *patient.Patient, bd Breakdown) *MatchResult {
	total := s.Weights.Name*bd.Name +
		s.Weights.DOB*bd.DOB +
		s.Weights.Gender*bd.Gender +
		s.Weights.Address*bd.Address +
		s.Weights.Identifier*bd.Identifier

	return &MatchResult{
		Candidate:      candidate,
		Score:          total,
		Classification: classify(total, s.Threshold),
		Match:          total >= s.Threshold,
		Breakdown:      bd,
	}
}

func classify(total, threshold float64) Classification {
	switch {
	case total >= 0.95:
		return ClassificationDefinite
	case total >= threshold:
		return ClassificationProbable
	case total >= 0.50:
		return ClassificationPossible
	default:
		return ClassificationUnlikely
	}
}

const deterministicMatchThreshold = 0.75

func (s *Scorer) scoreDeterministic(candidate *patient.Patient, bd Breakdown, hasAddress bool) *MatchResult {
	if bd.Identifier >= 0.98 {
		return &MatchResult{
			Candidate:      candidate,
			Score:          1.0,
			Classification: ClassificationDefinite,
			Match:          true,
			Breakdown:      bd,
		}
	}

	points := 0
	if bd.Name >= 0.90 {
		points++
	}
	if bd.DOB >= 0.95 {
		points++
	}
	if bd.Gender == 1.00 {
		points++
	}

	denominator := 3
	if hasAddress {
		denominator = 4
		if bd.Address >= 0.80 {
			points++
		}
	}

	score := float64(points) / float64(denominator)
	return &MatchResult{
		Candidate:      candidate,
		Score:          score,
		Classification: classify(score, s.Threshold),
		Match:          score >= deterministicMatchThreshold,
		Breakdown:      bd,
	}
}
