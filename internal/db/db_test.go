package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alecgard/toolshelf/internal/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"no rows", pgx.ErrNoRows, apperr.KindNotFound},
		{"wrapped no rows", fmt.Errorf("scanning: %w", pgx.ErrNoRows), apperr.KindNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, apperr.KindConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, apperr.KindNotFound},
		{"invalid uuid text", &pgconn.PgError{Code: "22P02"}, apperr.KindValidation},
		{"check violation", &pgconn.PgError{Code: "23514"}, apperr.KindValidation},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, apperr.KindUnexpected},
		{"deadline", context.DeadlineExceeded, apperr.KindUnavailable},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), apperr.KindUnavailable},
		{"unknown", errors.New("boom"), apperr.KindUnexpected},
		{"already classified", apperr.Authorization("", "nope"), apperr.KindAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("test.Op", tt.err, "thing not found", "thing exists")
			if k := apperr.KindOf(got); k != tt.want {
				t.Errorf("kind = %v, want %v (err=%v)", k, tt.want, got)
			}
		})
	}
}

func TestClassifyMessages(t *testing.T) {
	err := Classify("team.AddMember", &pgconn.PgError{Code: "23505"}, "team not found", "user is already a member of this team")
	if got := apperr.Message(err); got != "user is already a member of this team" {
		t.Errorf("conflict message = %q", got)
	}

	err = Classify("team.GetTeam", pgx.ErrNoRows, "team not found", "")
	if got := apperr.Message(err); got != "team not found" {
		t.Errorf("not found message = %q", got)
	}
}

func TestClassifyNil(t *testing.T) {
	if err := Classify("op", nil, "", ""); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWithTimeoutWithoutDeadline(t *testing.T) {
	d := &DB{}
	ctx, cancel := d.WithTimeout(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero timeout should not set a deadline")
	}
}
