package errors

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeCanceled},
		{"no rows", sql.ErrNoRows, ErrCodeNotFound},
		{"undefined table", &pgconn.PgError{Code: pgerrcode.UndefinedTable}, ErrCodeUnavailable},
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, ErrCodeUnavailable},
		{"too many connections", &pgconn.PgError{Code: pgerrcode.TooManyConnections}, ErrCodeUnavailable},
		{"query canceled", &pgconn.PgError{Code: pgerrcode.QueryCanceled}, ErrCodeTimeout},
		{"other pg error", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapDBError(tt.err)
			if code := GetCode(got); code != tt.want {
				t.Errorf("MapDBError(%v) code = %v, want %v", tt.err, code, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("MapDBError must keep the cause reachable")
			}
		})
	}
}

func TestMapDBError_PassThrough(t *testing.T) {
	if MapDBError(nil) != nil {
		t.Errorf("MapDBError(nil) should be nil")
	}
	plain := errors.New("plain")
	if got := MapDBError(plain); got != plain {
		t.Errorf("MapDBError(plain) = %v, want original", got)
	}
}
