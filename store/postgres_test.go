package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/tokenkeeper/owners"
	"github.com/dmitrijs2005/tokenkeeper/token"
)

func newRepoWithMock(t *testing.T, opts Options) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db, opts), mock, db
}

const (
	sweepExpiredOnlyQ = `(?s)^DELETE\s+FROM\s+tokens\s+WHERE\s+expires_at\s*<\s*\$1\s*$`
	insertQ           = `(?s)^\s*INSERT\s+INTO\s+tokens\s*\(owner_id,\s*token,\s*kind,\s*payload,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+id\s*$`
)

func TestSweep_ExpiredOnly(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	mock.ExpectExec(sweepExpiredOnlyQ).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.Sweep(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 affected rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSweep_DigestAndOwnerAreORCombined(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	owner := int64(7)
	q := `(?s)^DELETE\s+FROM\s+tokens\s+WHERE\s+expires_at\s*<\s*\$1\s+OR\s+token\s*=\s*\$2\s+OR\s+owner_id\s*=\s*\$3\s*$`

	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "d1gest", owner).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.Sweep(context.Background(), &token.Draft{Digest: "d1gest", OwnerID: &owner})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 affected rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSweep_DigestOnly(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+tokens\s+WHERE\s+expires_at\s*<\s*\$1\s+OR\s+token\s*=\s*\$2\s*$`

	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "d1gest").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := repo.Sweep(context.Background(), &token.Draft{Digest: "d1gest"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_SweepRunsBeforeInsert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	// The ordered expectations pin the protocol: begin, sweep, insert, commit.
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+tokens\s+WHERE\s+expires_at\s*<\s*\$1\s+OR\s+token\s*=\s*\$2\s*$`).
		WithArgs(sqlmock.AnyArg(), "d1gest").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertQ).
		WithArgs(nil, "d1gest", nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	tok, err := repo.Insert(context.Background(), &token.Draft{Digest: "d1gest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.ID != 42 {
		t.Fatalf("expected id 42, got %d", tok.ID)
	}
	if tok.Digest != "d1gest" {
		t.Fatalf("expected digest to round-trip, got %q", tok.Digest)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_DefaultExpiryApplied(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	before := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+tokens`).
		WithArgs(sqlmock.AnyArg(), "d1gest").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(insertQ).
		WithArgs(nil, "d1gest", nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	tok, err := repo.Insert(context.Background(), &token.Draft{Digest: "d1gest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Default is "+1 hour".
	want := before.Add(time.Hour)
	if tok.ExpiresAt.Before(want.Add(-time.Minute)) || tok.ExpiresAt.After(want.Add(time.Minute)) {
		t.Fatalf("expected expiry near %v, got %v", want, tok.ExpiresAt)
	}
}

func TestInsert_ValidationFailureWritesNothing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	// No DB expectations: an invalid draft must not touch the database.
	_, err := repo.Insert(context.Background(), &token.Draft{Digest: ""})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verrs *token.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *token.ValidationErrors, got %T: %v", err, err)
	}
	if got := verrs.Error(); got != "Error for `token` field: this field cannot be left empty" {
		t.Fatalf("unexpected message: %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_KindLengthValidated(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	// The length rule counts characters, not bytes: "日本" is two characters.
	for _, kind := range []string{"ab", "日本"} {
		_, err := repo.Insert(context.Background(), &token.Draft{Digest: "d1gest", Kind: &kind})

		var verrs *token.ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("kind %q: expected *token.ValidationErrors, got %v", kind, err)
		}
		if _, ok := verrs.Fields()[token.FieldKind]; !ok {
			t.Fatalf("kind %q: expected kind error, got %v", kind, verrs.Fields())
		}
	}

	// Validation failures must not reach the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_InvalidExpiryValidated(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	_, err := repo.Insert(context.Background(), &token.Draft{Digest: "d1gest", Expiry: token.In("never")})
	if !errors.Is(err, token.ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry, got %v", err)
	}

	// Validation failures must not reach the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_OwnerMustExist(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db, Options{Owners: owners.NewPostgresChecker(db, "", "")})

	owner := int64(99)
	mock.ExpectQuery(`(?s)^SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1\)\s*$`).
		WithArgs(owner).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err = repo.Insert(context.Background(), &token.Draft{Digest: "d1gest", OwnerID: &owner})

	var verrs *token.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *token.ValidationErrors, got %v", err)
	}
	if _, ok := verrs.Fields()[token.FieldOwner]; !ok {
		t.Fatalf("expected owner error, got %v", verrs.Fields())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_RetriesSerializationFailure(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	// First attempt aborts with SQLSTATE 40001, second succeeds.
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+tokens`).
		WithArgs(sqlmock.AnyArg(), "d1gest").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(insertQ).
		WithArgs(nil, "d1gest", nil, nil, sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+tokens`).
		WithArgs(sqlmock.AnyArg(), "d1gest").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(insertQ).
		WithArgs(nil, "d1gest", nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()

	tok, err := repo.Insert(context.Background(), &token.Draft{Digest: "d1gest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.ID != 5 {
		t.Fatalf("expected id 5, got %d", tok.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindActive_StrictScopingSQL(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*owner_id,\s*token,\s*kind,\s*payload,\s*expires_at\s+FROM\s+tokens\s+WHERE\s+expires_at\s*>=\s*\$1\s+AND\s+token\s*=\s*\$2\s+AND\s+owner_id\s+IS\s+NOT\s+DISTINCT\s+FROM\s+\$3\s+AND\s+kind\s+IS\s+NOT\s+DISTINCT\s+FROM\s+\$4\s+ORDER\s+BY\s+id\s*$`

	expires := time.Now().Add(time.Hour)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "token", "kind", "payload", "expires_at"}).
		AddRow(int64(1), nil, "d1gest", nil, nil, expires)

	mock.ExpectQuery(q).
		WithArgs(sqlmock.AnyArg(), "d1gest", nil, nil).
		WillReturnRows(rows)

	got, err := repo.FindByDigest(context.Background(), "d1gest", Filter{}.WithOwner(nil).WithKind(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Digest != "d1gest" || got[0].OwnerID != nil {
		t.Fatalf("unexpected result: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindActive_PayloadSoftFail(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*owner_id,\s*token,\s*kind,\s*payload,\s*expires_at\s+FROM\s+tokens\s+WHERE\s+expires_at\s*>=\s*\$1\s+ORDER\s+BY\s+id\s*$`

	rows := sqlmock.NewRows([]string{"id", "owner_id", "token", "kind", "payload", "expires_at"}).
		AddRow(int64(1), nil, "d1gest", nil, `{"ok":true}`, time.Now().Add(time.Hour)).
		AddRow(int64(2), nil, "d2gest", nil, `{broken`, time.Now().Add(time.Hour))

	mock.ExpectQuery(q).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := repo.FindActive(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if m, ok := got[0].Payload.(map[string]any); !ok || m["ok"] != true {
		t.Fatalf("expected deserialized payload, got %#v", got[0].Payload)
	}
	// Corrupt payloads come back as the raw stored string.
	if got[1].Payload != `{broken` {
		t.Fatalf("expected raw payload, got %#v", got[1].Payload)
	}
}

func TestFindActive_EmptyIsNotAnError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+id,`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "token", "kind", "payload", "expires_at"}))

	got, err := repo.FindActive(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows, got %d", len(got))
	}
}

func TestDeleteByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+tokens\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteByID(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteExpired_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, Options{})
	defer db.Close()

	mock.ExpectExec(sweepExpiredOnlyQ).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	if _, err := repo.DeleteExpired(context.Background()); err == nil {
		t.Fatal("expected wrapped db error")
	}
}
