package runs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *Repository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return mock, NewRepository(gdb)
}

func TestRepositoryCreate(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "prep_runs"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	err := repo.Create(context.Background(), &RunModel{
		ID:        uuid.New(),
		Kind:      "mlm",
		Config:    map[string]interface{}{"data": map[string]interface{}{"seed": 1}},
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateStatus(t *testing.T) {
	mock, repo := setupMockDB(t)
	runID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "prep_runs" SET .*"status"=`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), runID, StatusCompleted, map[string]interface{}{"stages": 3}, "/out/run", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGet(t *testing.T) {
	mock, repo := setupMockDB(t)
	runID := uuid.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "kind", "status", "output_path", "created_at"}).
		AddRow(runID.String(), "finetune", StatusRunning, "/out/death", created)
	mock.ExpectQuery(`SELECT \* FROM "prep_runs" WHERE id = \$1`).
		WillReturnRows(rows)

	run, err := repo.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, "finetune", run.Kind)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, created, run.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetNotFound(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM "prep_runs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRepositoryListByStatus(t *testing.T) {
	mock, repo := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "kind", "status"}).
		AddRow(uuid.New().String(), "mlm", StatusFailed).
		AddRow(uuid.New().String(), "finetune", StatusFailed)
	mock.ExpectQuery(`SELECT \* FROM "prep_runs" WHERE status = \$1 ORDER BY created_at desc`).
		WillReturnRows(rows)

	runs, err := repo.List(context.Background(), StatusFailed, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
