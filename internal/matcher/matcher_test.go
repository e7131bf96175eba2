package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelattice/mpi/internal/audit"
	"github.com/carelattice/mpi/internal/blocking"
	"github.com/carelattice/mpi/internal/domain/patient"
	"github.com/carelattice/mpi/internal/event"
	"github.com/carelattice/mpi/internal/mpierr"
	"github.com/carelattice/mpi/internal/scoring"
)

// fakeIndex is an in-memory blocking.Index double used to exercise the
// matcher façade without a database.
type fakeIndex struct {
	ids    []uuid.UUID
	err    error
}

func (f *fakeIndex) Upsert(ctx context.Context, rec blocking.Record) error      { return nil }
func (f *fakeIndex) BatchUpsert(ctx context.Context, recs []blocking.Record) error { return nil }
func (f *fakeIndex) Delete(ctx context.Context, id uuid.UUID) error             { return nil }
func (f *fakeIndex) SearchText(ctx context.Context, query string, limit int) ([]uuid.UUID, error) {
	return nil, nil
}
func (f *fakeIndex) SearchFuzzyFamily(ctx context.Context, family string, editDistance, limit int) ([]uuid.UUID, error) {
	return nil, nil
}
func (f *fakeIndex) SearchNameYear(ctx context.Context, family string, birthYear *int, editDistance, limit int) ([]uuid.UUID, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

// fakeRepo is an in-memory patient.Repository double.
type fakeRepo struct {
	byID map[uuid.UUID]*patient.Patient
}

func newFakeRepo() *fakeRepo { return &fakeRepo{byID: map[uuid.UUID]*patient.Patient{}} }

func (r *fakeRepo) Create(ctx context.Context, p *patient.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.byID[p.ID] = p
	return nil
}
func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, mpierr.NotFound("patient not found")
	}
	return p, nil
}
func (r *fakeRepo) Update(ctx context.Context, p *patient.Patient) error {
	r.byID[p.ID] = p
	return nil
}
func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	delete(r.byID, id)
	return nil
}
func (r *fakeRepo) SearchByFamilyLike(ctx context.Context, family string, limit, offset int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}
func (r *fakeRepo) ListActive(ctx context.Context, limit, offset int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}
func (r *fakeRepo) AddLink(ctx context.Context, link *patient.PatientLink) error    { return nil }
func (r *fakeRepo) RemoveLink(ctx context.Context, patientID, otherID uuid.UUID) error { return nil }

// fakeAuditWriter is a no-op audit.Writer double.
type fakeAuditWriter struct{}

func (fakeAuditWriter) Log(ctx context.Context, action audit.Action, entityType string, entityID uuid.UUID, before, after json.RawMessage, actor audit.ActorContext) error {
	return nil
}
func (fakeAuditWriter) LogsForEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]audit.Record, error) {
	return nil, nil
}
func (fakeAuditWriter) Recent(ctx context.Context, limit int) ([]audit.Record, error) {
	return nil, nil
}
func (fakeAuditWriter) ByUser(ctx context.Context, userID string, limit int) ([]audit.Record, error) {
	return nil, nil
}

// newTestPatient builds a patient sharing a fixed birth date and address
// with every other fixture, so two fixtures with the same name score
// 0.35*0.90 + 0.30 + 0.10 + 0.15 = 0.865, above the default 0.85 threshold.
func newTestPatient(id uuid.UUID, family, given string) *patient.Patient {
	dob := time.Date(1980, 1, 15, 0, 0, 0, 0, time.UTC)
	line1, city, state, postal := "123 Main St", "Springfield", "IL", "12345"
	return &patient.Patient{
		ID:        id,
		Active:    true,
		Gender:    patient.GenderMale,
		BirthDate: &dob,
		Names:     []patient.PatientName{{Family: family, Given: []string{given}, IsPrimary: true}},
		Addresses: []patient.PatientAddress{{Line1: &line1, City: &city, State: &state, PostalCode: &postal, IsPrimary: true}},
	}
}

func TestFindMatches_SortsByScoreDescendingWithIdentityTiebreak(t *testing.T) {
	scorer := scoring.DefaultScorer()
	m := New(scorer, &fakeIndex{}, nil, zerolog.Nop())

	query := newTestPatient(uuid.New(), "Smith", "John")

	lowID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	highID := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	exactA := newTestPatient(lowID, "Smith", "John")
	exactB := newTestPatient(highID, "Smith", "John")

	results := m.FindMatches(query, []*patient.Patient{exactB, exactA})
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].Candidate.ID != lowID {
		t.Errorf("expected tie broken by lowest id first, got %v then %v", results[0].Candidate.ID, results[1].Candidate.ID)
	}
}

func TestFindMatches_ExcludesNonMatches(t *testing.T) {
	scorer := scoring.DefaultScorer()
	m := New(scorer, &fakeIndex{}, nil, zerolog.Nop())

	query := newTestPatient(uuid.New(), "Smith", "John")
	unrelated := newTestPatient(uuid.New(), "Totallydifferent", "Alsodifferent")

	results := m.FindMatches(query, []*patient.Patient{unrelated})
	if len(results) != 0 {
		t.Errorf("expected no matches for an unrelated candidate, got %d", len(results))
	}
}

func TestBlockAndMatch_GhostPatientTolerance(t *testing.T) {
	repo := newFakeRepo()
	query := newTestPatient(uuid.New(), "Smith", "John")

	present := newTestPatient(uuid.New(), "Smith", "John")
	repo.byID[present.ID] = present

	ghostID := uuid.New() // indexed, but absent from the store

	idx := &fakeIndex{ids: []uuid.UUID{present.ID, ghostID}}
	store := patient.NewStore(repo, idx, fakeAuditWriter{}, event.New(zerolog.Nop()), zerolog.Nop())
	m := New(scoring.DefaultScorer(), idx, store, zerolog.Nop())

	results, err := m.BlockAndMatch(context.Background(), query, 10, false)
	if err != nil {
		t.Fatalf("BlockAndMatch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the ghost candidate to be skipped, got %d results", len(results))
	}
	if results[0].Candidate.ID != present.ID {
		t.Errorf("expected the present candidate to be returned, got %v", results[0].Candidate.ID)
	}
}

func TestBlockAndMatch_LenientOnBlockingFailure(t *testing.T) {
	repo := newFakeRepo()
	query := newTestPatient(uuid.New(), "Smith", "John")

	idx := &fakeIndex{err: errors.New("index unavailable")}
	store := patient.NewStore(repo, idx, fakeAuditWriter{}, event.New(zerolog.Nop()), zerolog.Nop())
	m := New(scoring.DefaultScorer(), idx, store, zerolog.Nop())

	results, err := m.BlockAndMatch(context.Background(), query, 10, true)
	if err != nil {
		t.Fatalf("expected lenient mode to swallow the blocking error, got %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results under lenient blocking failure, got %v", results)
	}
}

func TestBlockAndMatch_StrictPropagatesBlockingFailure(t *testing.T) {
	repo := newFakeRepo()
	query := newTestPatient(uuid.New(), "Smith", "John")

	idx := &fakeIndex{err: errors.New("index unavailable")}
	store := patient.NewStore(repo, idx, fakeAuditWriter{}, event.New(zerolog.Nop()), zerolog.Nop())
	m := New(scoring.DefaultScorer(), idx, store, zerolog.Nop())

	_, err := m.BlockAndMatch(context.Background(), query, 10, false)
	if err == nil {
		t.Fatal("expected strict mode to propagate the blocking error")
	}
}

func TestBlockAndMatch_RequiresPrimaryName(t *testing.T) {
	repo := newFakeRepo()
	store := patient.NewStore(repo, &fakeIndex{}, fakeAuditWriter{}, event.New(zerolog.Nop()), zerolog.Nop())
	m := New(scoring.DefaultScorer(), &fakeIndex{}, store, zerolog.Nop())

	query := &patient.Patient{ID: uuid.New()}
	_, err := m.BlockAndMatch(context.Background(), query, 10, false)
	if !mpierr.Is(err, mpierr.KindValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}
