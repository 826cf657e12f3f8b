package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🧪 postgres / mysql 方言测试
// =============================================================================

// sqlRecorder 记录实际执行的 SQL，匹配规则沿用正则
type sqlRecorder struct {
	mu      sync.Mutex
	queries []string
}

func (r *sqlRecorder) Match(expectedSQL, actualSQL string) error {
	r.mu.Lock()
	r.queries = append(r.queries, actualSQL)
	r.mu.Unlock()
	return sqlmock.QueryMatcherRegexp.Match(expectedSQL, actualSQL)
}

func (r *sqlRecorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queries) == 0 {
		return ""
	}
	return r.queries[len(r.queries)-1]
}

func setupDialectStore(t *testing.T, dialect string) (*SQL, sqlmock.Sqlmock, *sqlRecorder) {
	t.Helper()
	rec := &sqlRecorder{}
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherFunc(rec.Match)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	var dialector gorm.Dialector
	switch dialect {
	case "postgres":
		dialector = postgres.New(postgres.Config{Conn: mockDB})
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: mockDB, SkipInitializeWithVersion: true})
	default:
		t.Fatalf("unknown dialect %s", dialect)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	s, err := NewSQL(gormDB, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	return s, mock, rec
}

func sampleTask() TaskRecord {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return TaskRecord{
		TaskID:    "task-1",
		Prompt:    "une forêt",
		Provider:  "replicate",
		Settings:  map[string]float64{"fps": 8},
		Status:    "running",
		Progress:  0.3,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQL_Postgres_SaveTaskUpsert(t *testing.T) {
	s, mock, rec := setupDialectStore(t, "postgres")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "aimodal_tasks" .* ON CONFLICT \("task_id"\) DO UPDATE SET "prompt"="excluded"."prompt",.*"updated_at"="excluded"."updated_at"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveTask(context.Background(), sampleTask()))
	require.NoError(t, mock.ExpectationsWereMet())

	query := rec.Last()
	assert.Contains(t, query, `"created_at"`)
	assert.NotContains(t, query, `"created_at"="excluded"."created_at"`)
}

func TestSQL_Postgres_SaveTaskError(t *testing.T) {
	s, mock, _ := setupDialectStore(t, "postgres")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "aimodal_tasks"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.SaveTask(context.Background(), sampleTask())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save task task-1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_Postgres_SaveVideoReturnsID(t *testing.T) {
	s, mock, _ := setupDialectStore(t, "postgres")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "aimodal_videos" .* RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveVideo(context.Background(), VideoRecord{FileID: "vid-1", Filename: "a.mp4", Source: SourceUpload}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_Postgres_GetTaskNotFound(t *testing.T) {
	s, mock, _ := setupDialectStore(t, "postgres")

	mock.ExpectQuery(`SELECT \* FROM "aimodal_tasks" WHERE task_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}))

	_, err := s.GetTask(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_Postgres_ResetInOneTransaction(t *testing.T) {
	s, mock, _ := setupDialectStore(t, "postgres")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "aimodal_videos"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "aimodal_tasks"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, s.Reset(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_Postgres_ResetRollsBackOnError(t *testing.T) {
	s, mock, _ := setupDialectStore(t, "postgres")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "aimodal_videos"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "aimodal_tasks"`).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := s.Reset(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reset tasks")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_MySQL_SaveTaskUpsert(t *testing.T) {
	s, mock, rec := setupDialectStore(t, "mysql")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `aimodal_tasks` .* ON DUPLICATE KEY UPDATE .*`prompt`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveTask(context.Background(), sampleTask()))
	require.NoError(t, mock.ExpectationsWereMet())

	query := rec.Last()
	assert.Contains(t, query, "`updated_at`")
	assert.NotContains(t, query, "`created_at`=")
}

func TestSQL_MySQL_ResetInOneTransaction(t *testing.T) {
	s, mock, _ := setupDialectStore(t, "mysql")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `aimodal_videos`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `aimodal_tasks`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Reset(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
