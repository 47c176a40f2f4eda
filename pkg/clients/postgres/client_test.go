package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
	})
	return mock
}

func requireCode(t *testing.T, err error, want sserr.Code) {
	t.Helper()
	var ssErr *sserr.Error
	if !errors.As(err, &ssErr) {
		t.Fatalf("error type = %T, want *sserr.Error", err)
	}
	if ssErr.Code != want {
		t.Errorf("error code = %q, want %q", ssErr.Code, want)
	}
}

func TestNewFromPool(t *testing.T) {
	mock := newMock(t)

	client := NewFromPool(mock, &Config{Database: "identity"})
	if client.databaseName != "identity" {
		t.Errorf("databaseName = %q, want %q", client.databaseName, "identity")
	}
	if client.Pool() != mock {
		t.Error("Pool() does not return the wrapped pool")
	}

	client = NewFromPool(mock, nil)
	if client.config == nil {
		t.Error("config is nil, want zero-value Config")
	}
}

func TestClient_Query(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT id, username FROM users").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username"}).AddRow(int64(1), "alice"))

	client := NewFromPool(mock, nil)
	rows, err := client.Query(context.Background(), "SELECT id, username FROM users")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			t.Fatalf("Scan() error: %v", err)
		}
		n++
	}
	if n != 1 {
		t.Errorf("row count = %d, want 1", n)
	}
}

func TestClient_Query_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want sserr.Code
	}{
		{"database", errors.New("relation does not exist"), sserr.CodeInternalDatabase},
		{"deadline", context.DeadlineExceeded, sserr.CodeTimeoutDatabase},
		{"canceled", context.Canceled, sserr.CodeTimeoutDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectQuery("SELECT").WillReturnError(tt.err)

			_, err := NewFromPool(mock, nil).Query(context.Background(), "SELECT 1")
			requireCode(t, err, tt.want)
		})
	}
}

func TestClient_QueryRow_NoRows(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT").WillReturnRows(pgxmock.NewRows([]string{"id"}))

	var id int64
	err := NewFromPool(mock, nil).QueryRow(context.Background(), "SELECT id FROM users WHERE id = $1", int64(9)).Scan(&id)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("Scan() error = %v, want pgx.ErrNoRows", err)
	}
}

func TestClient_Exec(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("UPDATE external_logins").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tag, err := NewFromPool(mock, nil).Exec(context.Background(), "UPDATE external_logins SET last_used_at = now() WHERE id = $1", int64(1))
	if err != nil {
		t.Fatalf("Exec() error: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Errorf("RowsAffected() = %d, want 1", tag.RowsAffected())
	}
}

func TestClient_Exec_UniqueViolationKeepsCause(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("INSERT").WillReturnError(&pgconn.PgError{
		Code:           SQLStateUniqueViolation,
		ConstraintName: "users_username_key",
	})

	_, err := NewFromPool(mock, nil).Exec(context.Background(), "INSERT INTO users DEFAULT VALUES")
	requireCode(t, err, sserr.CodeInternalDatabase)

	v, ok := AsViolation(err)
	if !ok {
		t.Fatal("AsViolation() = false, want true")
	}
	if v.SQLState != SQLStateUniqueViolation || v.Constraint != "users_username_key" {
		t.Errorf("AsViolation() = %+v", v)
	}
}

func TestAsViolation_Other(t *testing.T) {
	if _, ok := AsViolation(errors.New("boom")); ok {
		t.Error("plain error reported as violation")
	}
	if _, ok := AsViolation(&pgconn.PgError{Code: "42P01"}); ok {
		t.Error("undefined_table reported as violation")
	}
	v, ok := AsViolation(&pgconn.PgError{Code: SQLStateForeignKeyViolation, ConstraintName: "external_logins_user_id_fkey"})
	if !ok || v.Constraint != "external_logins_user_id_fkey" {
		t.Errorf("AsViolation(fk) = %+v, %v", v, ok)
	}
}

func TestClient_Begin(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := NewFromPool(mock, nil).Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
}

func TestClient_Begin_Error(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := NewFromPool(mock, nil).Begin(context.Background())
	requireCode(t, err, sserr.CodeInternalDatabase)
}

func TestClient_Health(t *testing.T) {
	mock := newMock(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	client := NewFromPool(mock, nil)
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	requireCode(t, client.Health(context.Background()), sserr.CodeUnavailableDependency)
}

func TestClient_Close(t *testing.T) {
	mock := newMock(t)
	mock.ExpectClose()

	NewFromPool(mock, nil).Close()
}
