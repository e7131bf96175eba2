package patient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelattice/mpi/internal/audit"
	"github.com/carelattice/mpi/internal/blocking"
	"github.com/carelattice/mpi/internal/event"
	"github.com/carelattice/mpi/internal/mpierr"
)

// Store is the public entry point for the persistence core (§4.F): a
// transactional aggregate repository synchronized, best-effort and
// failure-isolated, with a full-text index and an audit/event stream.
type Store struct {
	repo      Repository
	index     blocking.Index
	auditLog  audit.Writer
	publisher *event.Publisher
	logger    zerolog.Logger
}

// NewStore wires a Repository together with its index, audit, and event
// collaborators. Any of index/auditLog/publisher may legitimately fail at
// call time; Store never lets such a failure affect the operation's return
// value, matching the ordering guarantee in §5.
func NewStore(repo Repository, index blocking.Index, auditLog audit.Writer, publisher *event.Publisher, logger zerolog.Logger) *Store {
	return &Store{repo: repo, index: index, auditLog: auditLog, publisher: publisher, logger: logger}
}

// Create validates the derived invariants, inserts the aggregate and its
// children in one transaction, then fires the index/audit/event side
// effects in that order, each best-effort.
func (s *Store) Create(ctx context.Context, p *Patient, actor audit.ActorContext) (*Patient, error) {
	if err := validatePrimaries(p); err != nil {
		return nil, err
	}
	p.CreatedBy = actor.UserID
	p.UpdatedBy = actor.UserID

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	saved, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	s.sideEffects(ctx, audit.ActionCreate, saved, nil, actor)
	return saved, nil
}

// GetByID returns the live aggregate, or a NotFound error for unknown or
// tombstoned identities.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Update validates the derived invariants, replaces the root and child
// collections in one transaction, then fires side effects best-effort.
func (s *Store) Update(ctx context.Context, p *Patient, actor audit.ActorContext) (*Patient, error) {
	if err := validatePrimaries(p); err != nil {
		return nil, err
	}

	before, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	p.UpdatedBy = actor.UserID
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	after, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	s.sideEffects(ctx, audit.ActionUpdate, after, before, actor)
	return after, nil
}

// Delete soft-deletes the aggregate: deleted-at and deleted-by are set,
// child rows are left intact, and identifier uniqueness keeps applying
// against the tombstoned row.
func (s *Store) Delete(ctx context.Context, id uuid.UUID, actor audit.ActorContext) error {
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id, actor.UserID); err != nil {
		return err
	}

	s.sideEffectsDelete(ctx, id, before, actor)
	return nil
}

// SearchByFamilyLike is a convenience read path; it is not on the matching
// path and has no side effects of its own.
func (s *Store) SearchByFamilyLike(ctx context.Context, pattern string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.SearchByFamilyLike(ctx, pattern, limit, offset)
}

// ListActive cursors over live patients.
func (s *Store) ListActive(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListActive(ctx, limit, offset)
}

// AddLink records a directed PatientLink between two externally-owned
// aggregates, then fires the audit/event side effects best-effort. Links
// do not round-trip through the create/update snapshot path, so they get
// their own narrow write operation per §4's supplemented PatientLink
// management.
func (s *Store) AddLink(ctx context.Context, link *PatientLink, actor audit.ActorContext) (*PatientLink, error) {
	if err := s.repo.AddLink(ctx, link); err != nil {
		return nil, err
	}
	s.sideEffectsLink(ctx, audit.ActionLink, link, nil, actor)
	return link, nil
}

// RemoveLink deletes the link between patientID and otherID, then fires
// the audit/event side effects best-effort. The pre-removal link, if
// found, becomes the audit record's before snapshot.
func (s *Store) RemoveLink(ctx context.Context, patientID, otherID uuid.UUID, actor audit.ActorContext) error {
	before := s.findLink(ctx, patientID, otherID)

	if err := s.repo.RemoveLink(ctx, patientID, otherID); err != nil {
		return err
	}

	s.sideEffectsLink(ctx, audit.ActionUnlink, nil, before, actor)
	return nil
}

func (s *Store) findLink(ctx context.Context, patientID, otherID uuid.UUID) *PatientLink {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return nil
	}
	for i := range p.Links {
		if p.Links[i].OtherID == otherID {
			return &p.Links[i]
		}
	}
	return nil
}

func (s *Store) sideEffects(ctx context.Context, action audit.Action, after, before *Patient, actor audit.ActorContext) {
	s.updateIndex(ctx, after)
	s.writeAudit(ctx, action, after.ID, before, after, actor)
	s.publish(ctx, action, after.ID)
}

func (s *Store) sideEffectsDelete(ctx context.Context, id uuid.UUID, before *Patient, actor audit.ActorContext) {
	if err := s.index.Delete(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", id.String()).Msg("index delete failed after commit")
	}
	s.writeAudit(ctx, audit.ActionDelete, id, before, nil, actor)
	s.publisher.Publish(event.Deleted(id, time.Now()))
}

func (s *Store) updateIndex(ctx context.Context, p *Patient) {
	name := p.PrimaryName()
	addr := p.PrimaryAddress()
	rec := blocking.Record{
		ID:     p.ID,
		Active: p.Active && p.IsLive(),
	}
	if name != nil {
		rec.Family = name.Family
		rec.Given = joinTokens(name.Given)
		rec.FullName = blocking.BuildFullName(name.Given, name.Family)
	}
	if p.BirthDate != nil {
		rec.BirthDate = p.BirthDate.Format("2006-01-02")
	}
	rec.Gender = string(p.Gender)
	if addr != nil {
		if addr.PostalCode != nil {
			rec.PostalCode = *addr.PostalCode
		}
		if addr.City != nil {
			rec.City = *addr.City
		}
		if addr.State != nil {
			rec.State = *addr.State
		}
	}
	var pairs [][2]string
	for _, id := range p.Identifiers {
		pairs = append(pairs, [2]string{string(id.Type), id.Value})
	}
	rec.Identifiers = blocking.BuildIdentifierTokens(pairs)

	if err := s.index.Upsert(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("index upsert failed after commit")
	}
}

func (s *Store) writeAudit(ctx context.Context, action audit.Action, id uuid.UUID, before, after *Patient, actor audit.ActorContext) {
	var beforeJSON, afterJSON json.RawMessage
	if before != nil {
		if b, err := json.Marshal(before); err == nil {
			beforeJSON = b
		}
	}
	if after != nil {
		if b, err := json.Marshal(after); err == nil {
			afterJSON = b
		}
	}
	if err := s.auditLog.Log(ctx, action, "patient", id, beforeJSON, afterJSON, actor); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", id.String()).Msg("audit write failed after commit")
	}
}

func (s *Store) publish(ctx context.Context, action audit.Action, id uuid.UUID) {
	now := time.Now()
	switch action {
	case audit.ActionCreate:
		s.publisher.Publish(event.Created(&event.Patient{ID: id}, now))
	case audit.ActionUpdate:
		s.publisher.Publish(event.Updated(&event.Patient{ID: id}, now))
	}
}

func (s *Store) sideEffectsLink(ctx context.Context, action audit.Action, after, before *PatientLink, actor audit.ActorContext) {
	var beforeJSON, afterJSON json.RawMessage
	if before != nil {
		if b, err := json.Marshal(before); err == nil {
			beforeJSON = b
		}
	}
	if after != nil {
		if b, err := json.Marshal(after); err == nil {
			afterJSON = b
		}
	}

	entityID, patientID, otherID := uuid.Nil, uuid.Nil, uuid.Nil
	switch {
	case after != nil:
		entityID, patientID, otherID = after.ID, after.PatientID, after.OtherID
	case before != nil:
		entityID, patientID, otherID = before.ID, before.PatientID, before.OtherID
	}

	if err := s.auditLog.Log(ctx, action, "patient_link", entityID, beforeJSON, afterJSON, actor); err != nil {
		s.logger.Warn().Err(err).Str("link_id", entityID.String()).Msg("audit write failed after commit")
	}

	now := time.Now()
	switch action {
	case audit.ActionLink:
		s.publisher.Publish(event.Linked(patientID, otherID, now))
	case audit.ActionUnlink:
		s.publisher.Publish(event.Unlinked(patientID, otherID, now))
	}
}

func joinTokens(tokens []string) string {
	out := ""
	for i, t := range tokens {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

// validatePrimaries enforces the derived invariants §4.F requires at
// insert/update time: exactly one primary name, at most one primary
// address, at most one primary contact.
func validatePrimaries(p *Patient) error {
	primaryNames := 0
	for _, n := range p.Names {
		if n.IsPrimary {
			primaryNames++
		}
	}
	if primaryNames != 1 {
		return mpierr.ValidationFailed("patient must have exactly one primary name")
	}

	primaryAddrs := 0
	for _, a := range p.Addresses {
		if a.IsPrimary {
			primaryAddrs++
		}
	}
	if primaryAddrs > 1 {
		return mpierr.ValidationFailed("patient must have at most one primary address")
	}

	primaryContacts := 0
	for _, c := range p.Contacts {
		if c.IsPrimary {
			primaryContacts++
		}
	}
	if primaryContacts > 1 {
		return mpierr.ValidationFailed("patient must have at most one primary contact")
	}

	return nil
}
