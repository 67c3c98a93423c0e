package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "period_id", "assigned_hours"}).
		AddRow("av-1", "teacher-1", "per-1", 12)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE teacher_id = $1 AND period_id = $2")).
		WithArgs("teacher-1", "per-1").
		WillReturnRows(rows)

	availability, err := repo.Get(context.Background(), "teacher-1", "per-1")
	require.NoError(t, err)
	assert.Equal(t, 12, availability.AssignedHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (teacher_id, period_id)")).
		WithArgs(sqlmock.AnyArg(), "teacher-1", "per-1", 16, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), nil, "teacher-1", "per-1", 16)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
