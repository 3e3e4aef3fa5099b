package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestSQLLogger_RecordInserts(t *testing.T) {
	db, mock := newMockDB(t)
	logger := NewSQLLogger(db, true)
	logger.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }

	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(
			"INSERT", "public", "signals", "OMEN-001",
			nil, sqlmock.AnyArg(), nil, "REAL",
			"pipeline", "signal emitted", sqlmock.AnyArg(),
			time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := logger.Record(context.Background(), Entry{
		OperationType: OpInsert,
		Schema:        "public",
		Table:         "signals",
		TargetID:      "OMEN-001",
		NewValue:      map[string]any{"signal_id": "OMEN-001"},
		SourceType:    SourceReal,
		PerformedBy:   "pipeline",
		Reason:        "signal emitted",
		Metadata:      map[string]any{"trace_id": "t-1"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLogger_BestEffortSwallowsFailures(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO audit_log").WillReturnError(assert.AnError)
	logger := NewSQLLogger(db, false)
	err := logger.Record(context.Background(), Entry{
		OperationType: OpInsert, Table: "signals", TargetID: "OMEN-002",
		SourceType: SourceReal, PerformedBy: "pipeline",
	})
	assert.NoError(t, err, "non-strict mode never surfaces audit failures")

	mock.ExpectExec("INSERT INTO audit_log").WillReturnError(assert.AnError)
	strict := NewSQLLogger(db, true)
	err = strict.Record(context.Background(), Entry{
		OperationType: OpInsert, Table: "signals", TargetID: "OMEN-003",
		SourceType: SourceReal, PerformedBy: "pipeline",
	})
	assert.Error(t, err, "strict mode surfaces the failure")
}

func TestAttestor_AttestOncePerSignal(t *testing.T) {
	db, mock := newMockDB(t)
	a := NewAttestor(db)
	a.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }

	sample := []byte(`{"market":"red-sea-disruption"}`)

	mock.ExpectExec("INSERT INTO attestations").
		WithArgs(
			sqlmock.AnyArg(), "OMEN-001", "REAL",
			"sha256_response_sample", HashResponseSample(sample),
			time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := a.Attest(context.Background(), "OMEN-001", SourceReal, sample)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// Second attestation conflicts and is ignored
	mock.ExpectExec("INSERT INTO attestations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	id, err = a.Attest(context.Background(), "OMEN-001", SourceReal, sample)
	require.NoError(t, err)
	assert.Empty(t, id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHashResponseSample_Deterministic(t *testing.T) {
	a := HashResponseSample([]byte("sample"))
	b := HashResponseSample([]byte("sample"))
	c := HashResponseSample([]byte("other"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
