package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

// ContractRepository provides read access to teacher contracts.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository creates a new contract repository.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// FindActiveByTeacher returns the teacher's single active contract.
// sql.ErrNoRows means the teacher is uncontracted and must not accumulate
// hours.
func (r *ContractRepository) FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Contract, error) {
	const query = `SELECT id, teacher_id, start_date, end_date, weekly_hour_cap, preferred_shifts, active, created_at FROM contracts WHERE teacher_id = $1 AND active ORDER BY start_date DESC LIMIT 1`
	var contract models.Contract
	if err := r.db.GetContext(ctx, &contract, query, teacherID); err != nil {
		return nil, err
	}
	return &contract, nil
}
