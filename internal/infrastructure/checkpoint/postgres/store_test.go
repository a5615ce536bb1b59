package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haithamq/visaflow/internal/core/domain"
)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewStore(db), mock, func() { _ = db.Close() }
}

func TestEnsureSchema(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(int64(2026083101)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetReturnsBlob(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT state FROM checkpoints").
		WithArgs("workflow:req-1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow([]byte(`{"request_id":"req-1"}`)))

	blob, err := store.Get(context.Background(), "workflow:req-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(blob) != `{"request_id":"req-1"}` {
		t.Fatalf("blob = %s", blob)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetMissReturnsCheckpointNotFound(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT state FROM checkpoints").
		WithArgs("workflow:missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "workflow:missing")
	if !domain.IsKind(err, domain.ErrCheckpointNotFound) {
		t.Fatalf("error = %v, want checkpoint not found", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetUpsertsWithExpiry(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO checkpoints").
		WithArgs("workflow:req-1", []byte("state"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Set(context.Background(), "workflow:req-1", []byte("state"), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetWithoutTTLStoresNullExpiry(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO checkpoints").
		WithArgs("workflow:req-1", []byte("state"), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Set(context.Background(), "workflow:req-1", []byte("state"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := store.DeleteExpired(context.Background())
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if affected != 3 {
		t.Fatalf("affected = %d, want 3", affected)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetPropagatesDriverError(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	driverErr := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO checkpoints").
		WillReturnError(driverErr)

	if err := store.Set(context.Background(), "workflow:req-1", []byte("state"), 0); !errors.Is(err, driverErr) {
		t.Fatalf("error = %v, want wrapped driver error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
