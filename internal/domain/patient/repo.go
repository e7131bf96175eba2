package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract the store builds on. Create and
// Update replace a patient's entire child collections (names, identifiers,
// addresses, contacts) in one transaction; Links are managed by their own
// narrower methods since they are not part of the matching-relevant
// snapshot a caller typically replaces wholesale.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID, deletedBy string) error
	SearchByFamilyLike(ctx context.Context, family string, limit, offset int) ([]*Patient, int, error)
	ListActive(ctx context.Context, limit, offset int) ([]*Patient, int, error)

	AddLink(ctx context.Context, link *PatientLink) error
	RemoveLink(ctx context.Context, patientID, otherID uuid.UUID) error
}
