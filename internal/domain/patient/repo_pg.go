package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelattice/mpi/internal/mpierr"
	"github.com/carelattice/mpi/internal/platform/db"
)

type pgRepo struct {
	pool *pgxpool.Pool
}

// NewPGRepo constructs a Repository backed by PostgreSQL. Create and
// Update, which write more than one table, open their own transaction via
// db.WithTx unless ctx already carries one, so a caller composing
// Create/Update with the rest of a larger unit of work gets one atomic
// commit. The read methods load the root and child tables without opening
// a transaction of their own.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

func (r *pgRepo) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, active, gender, birth_date, deceased, deceased_at,
	marital_status, multiple_birth, managing_organization,
	created_at, created_by, updated_at, updated_by, deleted_at, deleted_by`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Active, &p.Gender, &p.BirthDate, &p.Deceased, &p.DeceasedAt,
		&p.MaritalStatus, &p.MultipleBirth, &p.ManagingOrganization,
		&p.CreatedAt, &p.CreatedBy, &p.UpdatedAt, &p.UpdatedBy, &p.DeletedAt, &p.DeletedBy)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pgRepo) Create(ctx context.Context, p *Patient) error {
	ctx, commit, rollback, err := db.WithTx(ctx, r.pool)
	if err != nil {
		return mpierr.Database("begin create transaction", err)
	}
	defer rollback(ctx)

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, active, gender, birth_date, deceased, deceased_at,
			marital_status, multiple_birth, managing_organization,
			created_at, created_by, updated_at, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),$10,now(),$10)`,
		p.ID, p.Active, p.Gender, p.BirthDate, p.Deceased, p.DeceasedAt,
		p.MaritalStatus, p.MultipleBirth, p.ManagingOrganization, p.CreatedBy)
	if err != nil {
		return classifyWriteError("insert patient", err)
	}

	if err := r.replaceChildren(ctx, p); err != nil {
		return err
	}

	if err := commit(ctx); err != nil {
		return mpierr.Database("commit create transaction", err)
	}
	return nil
}

func (r *pgRepo) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mpierr.NotFound("patient not found")
		}
		return nil, mpierr.Database("get patient by id", err)
	}
	if err := r.loadChildren(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgRepo) Update(ctx context.Context, p *Patient) error {
	ctx, commit, rollback, err := db.WithTx(ctx, r.pool)
	if err != nil {
		return mpierr.Database("begin update transaction", err)
	}
	defer rollback(ctx)

	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET active=$2, gender=$3, birth_date=$4, deceased=$5, deceased_at=$6,
			marital_status=$7, multiple_birth=$8, managing_organization=$9,
			updated_at=now(), updated_by=$10
		WHERE id = $1 AND deleted_at IS NULL`,
		p.ID, p.Active, p.Gender, p.BirthDate, p.Deceased, p.DeceasedAt,
		p.MaritalStatus, p.MultipleBirth, p.ManagingOrganization, p.UpdatedBy)
	if err != nil {
		return classifyWriteError("update patient", err)
	}
	if tag.RowsAffected() == 0 {
		return mpierr.NotFound("patient not found")
	}

	if err := r.deleteChildren(ctx, p.ID); err != nil {
		return err
	}
	if err := r.replaceChildren(ctx, p); err != nil {
		return err
	}

	if err := commit(ctx); err != nil {
		return mpierr.Database("commit update transaction", err)
	}
	return nil
}

func (r *pgRepo) Delete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET deleted_at = now(), deleted_by = $2, active = false
		WHERE id = $1 AND deleted_at IS NULL`, id, deletedBy)
	if err != nil {
		return mpierr.Database("soft delete patient", err)
	}
	if tag.RowsAffected() == 0 {
		return mpierr.NotFound("patient not found")
	}
	return nil
}

func (r *pgRepo) SearchByFamilyLike(ctx context.Context, family string, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(DISTINCT patient.id) FROM patient
		JOIN patient_name ON patient_name.patient_id = patient.id
		WHERE patient.deleted_at IS NULL AND patient_name.family ILIKE '%' || $1 || '%'`,
		family).Scan(&total); err != nil {
		return nil, 0, mpierr.Database("count family search", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT `+prefixedPatientCols()+` FROM patient
		JOIN patient_name ON patient_name.patient_id = patient.id
		WHERE patient.deleted_at IS NULL AND patient_name.family ILIKE '%' || $1 || '%'
		ORDER BY patient.created_at DESC LIMIT $2 OFFSET $3`, family, limit, offset)
	if err != nil {
		return nil, 0, mpierr.Database("family search", err)
	}
	defer rows.Close()

	items, err := scanAndLoadAll(ctx, r, rows)
	return items, total, err
}

func (r *pgRepo) ListActive(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE deleted_at IS NULL AND active`).Scan(&total); err != nil {
		return nil, 0, mpierr.Database("count active patients", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE deleted_at IS NULL AND active
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, mpierr.Database("list active patients", err)
	}
	defer rows.Close()

	items, err := scanAndLoadAll(ctx, r, rows)
	return items, total, err
}

func prefixedPatientCols() string {
	cols := []string{"id", "active", "gender", "birth_date", "deceased", "deceased_at",
		"marital_status", "multiple_birth", "managing_organization",
		"created_at", "created_by", "updated_at", "updated_by", "deleted_at", "deleted_by"}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += "patient." + c
	}
	return out
}

func scanAndLoadAll(ctx context.Context, r *pgRepo, rows pgx.Rows) ([]*Patient, error) {
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, mpierr.Database("scan patient row", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mpierr.Database("iterate patient rows", err)
	}
	for _, p := range items {
		if err := r.loadChildren(ctx, p); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// replaceChildren inserts p's current in-memory child collections. Callers
// are expected to have already deleted any prior rows (Update does so
// explicitly; Create has none to delete).
func (r *pgRepo) replaceChildren(ctx context.Context, p *Patient) error {
	c := r.conn(ctx)

	for i := range p.Names {
		n := &p.Names[i]
		n.PatientID = p.ID
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		if _, err := c.Exec(ctx, `
			INSERT INTO patient_name (id, patient_id, use, family, given, prefix, suffix, is_primary)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			n.ID, n.PatientID, n.Use, n.Family, n.Given, n.Prefix, n.Suffix, n.IsPrimary); err != nil {
			return mpierr.Database("insert patient name", err)
		}
	}

	for i := range p.Identifiers {
		id := &p.Identifiers[i]
		id.PatientID = p.ID
		if id.ID == uuid.Nil {
			id.ID = uuid.New()
		}
		if _, err := c.Exec(ctx, `
			INSERT INTO patient_identifier (id, patient_id, type, system, value, assigner)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			id.ID, id.PatientID, id.Type, id.System, id.Value, id.Assigner); err != nil {
			return classifyWriteError("insert patient identifier", err)
		}
	}

	for i := range p.Addresses {
		a := &p.Addresses[i]
		a.PatientID = p.ID
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if _, err := c.Exec(ctx, `
			INSERT INTO patient_address (id, patient_id, use, line1, line2, city, state, postal_code, country, is_primary)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			a.ID, a.PatientID, a.Use, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.IsPrimary); err != nil {
			return mpierr.Database("insert patient address", err)
		}
	}

	for i := range p.Contacts {
		k := &p.Contacts[i]
		k.PatientID = p.ID
		if k.ID == uuid.Nil {
			k.ID = uuid.New()
		}
		if _, err := c.Exec(ctx, `
			INSERT INTO patient_contact (id, patient_id, channel, value, use, is_primary)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			k.ID, k.PatientID, k.Channel, k.Value, k.Use, k.IsPrimary); err != nil {
			return mpierr.Database("insert patient contact", err)
		}
	}

	return nil
}

func (r *pgRepo) deleteChildren(ctx context.Context, patientID uuid.UUID) error {
	c := r.conn(ctx)
	for _, table := range []string{"patient_name", "patient_identifier", "patient_address", "patient_contact"} {
		if _, err := c.Exec(ctx, `DELETE FROM `+table+` WHERE patient_id = $1`, patientID); err != nil {
			return mpierr.Database("delete "+table, err)
		}
	}
	return nil
}

func (r *pgRepo) loadChildren(ctx context.Context, p *Patient) error {
	c := r.conn(ctx)

	nameRows, err := c.Query(ctx, `SELECT id, patient_id, use, family, given, prefix, suffix, is_primary FROM patient_name WHERE patient_id = $1`, p.ID)
	if err != nil {
		return mpierr.Database("load patient names", err)
	}
	defer nameRows.Close()
	for nameRows.Next() {
		var n PatientName
		if err := nameRows.Scan(&n.ID, &n.PatientID, &n.Use, &n.Family, &n.Given, &n.Prefix, &n.Suffix, &n.IsPrimary); err != nil {
			return mpierr.Database("scan patient name", err)
		}
		p.Names = append(p.Names, n)
	}

	idRows, err := c.Query(ctx, `SELECT id, patient_id, type, system, value, assigner FROM patient_identifier WHERE patient_id = $1`, p.ID)
	if err != nil {
		return mpierr.Database("load patient identifiers", err)
	}
	defer idRows.Close()
	for idRows.Next() {
		var id PatientIdentifier
		if err := idRows.Scan(&id.ID, &id.PatientID, &id.Type, &id.System, &id.Value, &id.Assigner); err != nil {
			return mpierr.Database("scan patient identifier", err)
		}
		p.Identifiers = append(p.Identifiers, id)
	}

	addrRows, err := c.Query(ctx, `SELECT id, patient_id, use, line1, line2, city, state, postal_code, country, is_primary FROM patient_address WHERE patient_id = $1`, p.ID)
	if err != nil {
		return mpierr.Database("load patient addresses", err)
	}
	defer addrRows.Close()
	for addrRows.Next() {
		var a PatientAddress
		if err := addrRows.Scan(&a.ID, &a.PatientID, &a.Use, &a.Line1, &a.Line2, &a.City, &a.State, &a.PostalCode, &a.Country, &a.IsPrimary); err != nil {
			return mpierr.Database("scan patient address", err)
		}
		p.Addresses = append(p.Addresses, a)
	}

	contactRows, err := c.Query(ctx, `SELECT id, patient_id, channel, value, use, is_primary FROM patient_contact WHERE patient_id = $1`, p.ID)
	if err != nil {
		return mpierr.Database("load patient contacts", err)
	}
	defer contactRows.Close()
	for contactRows.Next() {
		var k PatientContact
		if err := contactRows.Scan(&k.ID, &k.PatientID, &k.Channel, &k.Value, &k.Use, &k.IsPrimary); err != nil {
			return mpierr.Database("scan patient contact", err)
		}
		p.Contacts = append(p.Contacts, k)
	}

	linkRows, err := c.Query(ctx, `SELECT id, patient_id, other_id, type, created_at FROM patient_link WHERE patient_id = $1`, p.ID)
	if err != nil {
		return mpierr.Database("load patient links", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var l PatientLink
		if err := linkRows.Scan(&l.ID, &l.PatientID, &l.OtherID, &l.Type, &l.CreatedAt); err != nil {
			return mpierr.Database("scan patient link", err)
		}
		p.Links = append(p.Links, l)
	}

	return nil
}

func (r *pgRepo) AddLink(ctx context.Context, link *PatientLink) error {
	if link.PatientID == link.OtherID {
		return mpierr.ValidationFailed("a patient cannot link to itself")
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_link (id, patient_id, other_id, type, created_at)
		VALUES ($1,$2,$3,$4,now())`, link.ID, link.PatientID, link.OtherID, link.Type)
	if err != nil {
		return classifyWriteError("insert patient link", err)
	}
	return nil
}

func (r *pgRepo) RemoveLink(ctx context.Context, patientID, otherID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_link WHERE patient_id = $1 AND other_id = $2`, patientID, otherID)
	if err != nil {
		return mpierr.Database("delete patient link", err)
	}
	if tag.RowsAffected() == 0 {
		return mpierr.NotFound("patient link not found")
	}
	return nil
}

// classifyWriteError recognizes Postgres' unique_violation SQLSTATE (23505)
// and reclassifies it as a uniqueness-violation domain error; any other
// driver error is wrapped as a plain database error. This keeps the two
// kinds distinguishable for callers instead of flattening both into
// KindDatabase.
func classifyWriteError(message string, err error) error {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
		return mpierr.UniquenessViolated(message + ": unique constraint violated")
	}
	return mpierr.Database(message, err)
}
