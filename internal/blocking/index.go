// Package blocking implements the candidate-retrieval layer (§4.E) that
// keeps the matcher's candidate set tractable: exact/phrase full-text
// search, fuzzy family-name search, and combined name+birth-year
// blocking. The index is backed directly by PostgreSQL full-text search
// (tsvector/ts_rank_cd) and the pg_trgm/fuzzystrmatch `levenshtein()`
// function, rather than an embedded search library, so that committed
// writes are immediately visible to the next reader without any
// out-of-process synchronization step.
package blocking

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelattice/mpi/internal/mpierr"
	"github.com/carelattice/mpi/internal/platform/db"
)

// Record is the indexed projection of one patient. Every field the
// blocking index can search or rank on must be present here; the full
// aggregate is loaded back from the store once candidate identities are
// known.
type Record struct {
	ID          uuid.UUID
	Family      string
	Given       string // space-joined given tokens
	FullName    string // rendered full name
	BirthDate   string // ISO-8601, empty if unknown
	Gender      string // lowercase
	PostalCode  string // primary address
	City        string // primary address
	State       string // primary address
	Identifiers string // "TYPE:VALUE" tokens, space-joined
	Active      bool
}

// Index is the collaborator contract the matcher façade and the patient
// store depend on. Any implementation satisfying it — an inverted-index
// library, database full-text search, an external search service — is
// acceptable provided committed writes are visible to the very next
// reader.
type Index interface {
	// Upsert inserts or replaces the indexed record for one patient.
	Upsert(ctx context.Context, rec Record) error
	// BatchUpsert inserts or replaces many records with a single commit.
	BatchUpsert(ctx context.Context, recs []Record) error
	// Delete removes a patient's record from the index by identity.
	Delete(ctx context.Context, id uuid.UUID) error
	// SearchText performs exact/phrase search across full_name, family,
	// given, and identifiers, ranked by a BM25-like relevance score,
	// capped at limit results.
	SearchText(ctx context.Context, query string, limit int) ([]uuid.UUID, error)
	// SearchFuzzyFamily performs a fuzzy family-name search allowing the
	// given edit distance (0, 1, or 2) including transpositions.
	SearchFuzzyFamily(ctx context.Context, family string, editDistance, limit int) ([]uuid.UUID, error)
	// SearchNameYear performs fuzzy family-name blocking combined with an
	// optional birth-year equality; the name match is required, the year
	// match only contributes to ranking.
	SearchNameYear(ctx context.Context, family string, birthYear *int, editDistance, limit int) ([]uuid.UUID, error)
}

// PostgresIndex is the default Index implementation, backed by a
// dedicated patient_index table maintained alongside the patient store.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex constructs a PostgresIndex over the given pool. The
// pool is expected to point at a database where the patient_index table
// (see migrations) and the pg_trgm and fuzzystrmatch extensions exist.
func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

func (idx *PostgresIndex) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, idx.pool)
}

const upsertSQL = `
INSERT INTO patient_index (
	id, family, given, full_name, birth_date, gender,
	postal_code, city, state, identifiers, active
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	family = EXCLUDED.family,
	given = EXCLUDED.given,
	full_name = EXCLUDED.full_name,
	birth_date = EXCLUDED.birth_date,
	gender = EXCLUDED.gender,
	postal_code = EXCLUDED.postal_code,
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	identifiers = EXCLUDED.identifiers,
	active = EXCLUDED.active`

func (idx *PostgresIndex) Upsert(ctx context.Context, rec Record) error {
	_, err := idx.conn(ctx).Exec(ctx, upsertSQL,
		rec.ID, rec.Family, rec.Given, rec.FullName, rec.BirthDate, rec.Gender,
		rec.PostalCode, rec.City, rec.State, rec.Identifiers, rec.Active)
	if err != nil {
		return mpierr.Index("upsert patient record", err)
	}
	return nil
}

// BatchUpsert wraps every record in a single transaction so index
// visibility flips for the whole batch atomically, per the single-commit
// requirement.
func (idx *PostgresIndex) BatchUpsert(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return mpierr.Index("begin batch upsert", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range recs {
		if _, err := tx.Exec(ctx, upsertSQL,
			rec.ID, rec.Family, rec.Given, rec.FullName, rec.BirthDate, rec.Gender,
			rec.PostalCode, rec.City, rec.State, rec.Identifiers, rec.Active); err != nil {
			return mpierr.Index("batch upsert record", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mpierr.Index("commit batch upsert", err)
	}
	return nil
}

func (idx *PostgresIndex) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := idx.conn(ctx).Exec(ctx, `DELETE FROM patient_index WHERE id = $1`, id)
	if err != nil {
		return mpierr.Index("delete patient record", err)
	}
	return nil
}

// searchVectorExpr is the same weighted tsvector expression the migration's
// GIN expression index on patient_index is defined over, so the search
// predicate can use that index.
const searchVectorExpr = `
	setweight(to_tsvector('simple', coalesce(full_name, '')), 'A') ||
	setweight(to_tsvector('simple', coalesce(family, '')), 'A') ||
	setweight(to_tsvector('simple', coalesce(given, '')), 'B') ||
	setweight(to_tsvector('simple', coalesce(identifiers, '')), 'C')`

func (idx *PostgresIndex) SearchText(ctx context.Context, query string, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}

	sql := fmt.Sprintf(`
		SELECT id FROM patient_index
		WHERE active AND (%s) @@ plainto_tsquery('simple', $1)
		ORDER BY ts_rank_cd((%s), plainto_tsquery('simple', $1)) DESC
		LIMIT $2`, searchVectorExpr, searchVectorExpr)

	rows, err := idx.conn(ctx).Query(ctx, sql, query, limit)
	if err != nil {
		return nil, mpierr.Index("text search", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// SearchFuzzyFamily measures distance with fuzzystrmatch's plain
// levenshtein(), which has no transposition operation: swapping two
// adjacent characters counts as two edits, so it is found only when
// editDistance is 2.
func (idx *PostgresIndex) SearchFuzzyFamily(ctx context.Context, family string, editDistance, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	if editDistance < 0 || editDistance > 2 {
		return nil, mpierr.ValidationFailed("fuzzy edit distance must be 0, 1, or 2")
	}

	sql := `
		SELECT id FROM patient_index
		WHERE active AND levenshtein(lower(family), lower($1)) <= $2
		ORDER BY levenshtein(lower(family), lower($1)) ASC
		LIMIT $3`

	rows, err := idx.conn(ctx).Query(ctx, sql, family, editDistance, limit)
	if err != nil {
		return nil, mpierr.Index("fuzzy family search", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (idx *PostgresIndex) SearchNameYear(ctx context.Context, family string, birthYear *int, editDistance, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	if editDistance < 0 || editDistance > 2 {
		return nil, mpierr.ValidationFailed("fuzzy edit distance must be 0, 1, or 2")
	}

	year := -1
	if birthYear != nil {
		year = *birthYear
	}

	// The name match is the required filter; a year match only affects
	// ranking via the CASE-derived boost, never filtering.
	sql := `
		SELECT id FROM patient_index
		WHERE active AND levenshtein(lower(family), lower($1)) <= $2
		ORDER BY
			(CASE WHEN $3 >= 0 AND birth_date LIKE ($3::text || '%') THEN 0 ELSE 1 END) ASC,
			levenshtein(lower(family), lower($1)) ASC
		LIMIT $4`

	rows, err := idx.conn(ctx).Query(ctx, sql, family, editDistance, year, limit)
	if err != nil {
		return nil, mpierr.Index("name+year blocking search", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, mpierr.Index("scan search result", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mpierr.Index("iterate search results", err)
	}
	return ids, nil
}

// BuildFullName joins given tokens and the family name the way the index
// expects for its full_name column.
func BuildFullName(given []string, family string) string {
	parts := append(append([]string{}, given...), family)
	return strings.Join(parts, " ")
}

// BuildIdentifierTokens renders a patient's identifiers as "TYPE:VALUE"
// tokens, space-joined, for the identifiers column.
func BuildIdentifierTokens(pairs [][2]string) string {
	tokens := make([]string, 0, len(pairs))
	for _, p := range pairs {
		tokens = append(tokens, fmt.Sprintf("%s:%s", p[0], p[1]))
	}
	return strings.Join(tokens, " ")
}
