// Package matcher implements the matcher façade (§4.I): the public
// entry point that ties the blocking index, the patient store, and the
// composite scorer together into match_pair, find_matches, and
// block_and_match.
package matcher

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/carelattice/mpi/internal/blocking"
	"github.com/carelattice/mpi/internal/domain/patient"
	"github.com/carelattice/mpi/internal/mpierr"
	"github.com/carelattice/mpi/internal/scoring"
)

// DefaultBlockResultCap is block_and_match's default candidate cap.
const DefaultBlockResultCap = 100

// Matcher is the façade described by §4.I.
type Matcher struct {
	scorer *scoring.Scorer
	index  blocking.Index
	store  *patient.Store
	logger zerolog.Logger
}

// New constructs a Matcher over the given scorer, blocking index, and
// patient store.
func New(scorer *scoring.Scorer, index blocking.Index, store *patient.Store, logger zerolog.Logger) *Matcher {
	return &Matcher{scorer: scorer, index: index, store: store, logger: logger}
}

// MatchPair applies the configured composite scorer to one query/candidate
// pair.
func (m *Matcher) MatchPair(query, candidate *patient.Patient) (*scoring.MatchResult, error) {
	return m.scorer.Score(query, candidate)
}

// FindMatches scores query against every candidate, keeps only results
// where is_match is true, and returns them sorted by score descending. Ties
// are broken by candidate identity so the ordering is stable across calls.
// A candidate the scorer fails on is omitted from the result with a logged
// warning; it does not abort scoring of the remaining candidates.
func (m *Matcher) FindMatches(query *patient.Patient, candidates []*patient.Patient) []*scoring.MatchResult {
	var results []*scoring.MatchResult
	for _, c := range candidates {
		res, err := m.scorer.Score(query, c)
		if err != nil {
			m.logger.Warn().Err(err).Str("candidate_id", c.ID.String()).Msg("scorer failed for candidate, skipping")
			continue
		}
		if res.Match {
			results = append(results, res)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Candidate.ID.String() < results[j].Candidate.ID.String()
	})

	return results
}

// BlockAndMatch blocks on query's family name and birth year with result
// cap k (0 means DefaultBlockResultCap), loads the matching aggregates from
// the store, and runs FindMatches over them.
//
// If lenient is true, a blocking failure yields an empty candidate set with
// a logged warning instead of propagating; otherwise the blocking error is
// returned to the caller.
func (m *Matcher) BlockAndMatch(ctx context.Context, query *patient.Patient, k int, lenient bool) ([]*scoring.MatchResult, error) {
	if k <= 0 {
		k = DefaultBlockResultCap
	}

	name := query.PrimaryName()
	if name == nil {
		return nil, mpierr.ValidationFailed("query patient has no primary name to block on")
	}

	var birthYear *int
	if query.BirthDate != nil {
		y := query.BirthDate.Year()
		birthYear = &y
	}

	ids, err := m.index.SearchNameYear(ctx, name.Family, birthYear, 2, k)
	if err != nil {
		if lenient {
			m.logger.Warn().Err(err).Msg("blocking search failed, continuing with empty candidate set")
			return nil, nil
		}
		return nil, err
	}

	candidates := make([]*patient.Patient, 0, len(ids))
	for _, id := range ids {
		if id == query.ID {
			continue
		}
		c, err := m.store.GetByID(ctx, id)
		if err != nil {
			m.logger.Warn().Err(err).Str("candidate_id", id.String()).Msg("failed to load blocked candidate, skipping")
			continue
		}
		candidates = append(candidates, c)
	}

	return m.FindMatches(query, candidates), nil
}
