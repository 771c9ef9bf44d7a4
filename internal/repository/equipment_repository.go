package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// EquipmentRepo provides CRUD over the equipment table.
type EquipmentRepo struct{ db *sql.DB }

func NewEquipmentRepo(db *sql.DB) *EquipmentRepo { return &EquipmentRepo{db: db} }

const equipmentColumns = "id, company_cd, name, total_counter, created_at, updated_at"

// Create inserts equipment and returns the stored row.
func (r *EquipmentRepo) Create(ctx context.Context, e model.Equipment) (model.Equipment, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO equipment (company_cd, name, total_counter) VALUES (?,?,?)",
		nullString(e.CompanyCd), strings.TrimSpace(e.Name), nullInt64(e.TotalCounter))
	if err != nil {
		return model.Equipment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Equipment{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID returns ErrEquipmentNotFound when the row is missing.
func (r *EquipmentRepo) GetByID(ctx context.Context, id uint64) (model.Equipment, error) {
	e, err := scanEquipment(r.db.QueryRowContext(ctx,
		"SELECT "+equipmentColumns+" FROM equipment WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Equipment{}, ErrEquipmentNotFound
	}
	return e, err
}

// Update overwrites the mutable fields.
func (r *EquipmentRepo) Update(ctx context.Context, e model.Equipment) (model.Equipment, error) {
	if _, err := r.GetByID(ctx, e.ID); err != nil {
		return model.Equipment{}, err
	}
	if _, err := r.db.ExecContext(ctx,
		"UPDATE equipment SET company_cd=?, name=?, total_counter=? WHERE id=?",
		nullString(e.CompanyCd), strings.TrimSpace(e.Name), nullInt64(e.TotalCounter), e.ID); err != nil {
		return model.Equipment{}, err
	}
	return r.GetByID(ctx, e.ID)
}

// Delete fails with ErrConflict while a report references the equipment.
// Threads only lose their equipment link.
func (r *EquipmentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM equipment WHERE id=?", id)
	if err != nil {
		if isRowReferenced(err) {
			return ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEquipmentNotFound
	}
	return nil
}

// List returns all equipment ordered by name.
func (r *EquipmentRepo) List(ctx context.Context) ([]model.Equipment, error) {
	return r.query(ctx, "SELECT "+equipmentColumns+" FROM equipment ORDER BY name, id")
}

// Search matches a name substring.
func (r *EquipmentRepo) Search(ctx context.Context, term string) ([]model.Equipment, error) {
	return r.query(ctx,
		"SELECT "+equipmentColumns+" FROM equipment WHERE name LIKE ? ORDER BY name, id",
		"%"+escapeLike(strings.TrimSpace(term))+"%")
}

// ListByCompany returns the equipment installed for an external company.
func (r *EquipmentRepo) ListByCompany(ctx context.Context, companyCd string) ([]model.Equipment, error) {
	return r.query(ctx,
		"SELECT "+equipmentColumns+" FROM equipment WHERE company_cd=? ORDER BY name, id", companyCd)
}

func (r *EquipmentRepo) query(ctx context.Context, q string, args ...any) ([]model.Equipment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Equipment{}
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEquipment(row rowScanner) (model.Equipment, error) {
	var (
		e       model.Equipment
		company sql.NullString
		counter sql.NullInt64
	)
	if err := row.Scan(&e.ID, &company, &e.Name, &counter, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return model.Equipment{}, err
	}
	e.CompanyCd = stringPtr(company)
	e.TotalCounter = int64Ptr(counter)
	return e, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
