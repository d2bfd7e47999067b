package aggregates

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestMapError_Validation(t *testing.T) {
	err := MapError("op", ValidationError("bad input"))
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected validation code, got %q (%v)", CodeOf(err), err)
	}
}

func TestMapError_NotFound(t *testing.T) {
	err := MapError("op", gorm.ErrRecordNotFound)
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("expected not_found code, got %q (%v)", CodeOf(err), err)
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := NewError(CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}

func TestMapError_PgCodes(t *testing.T) {
	cases := []struct {
		code string
		want ErrorCode
	}{
		{"23505", CodeConflict},
		{"23503", CodePreconditionFailed},
		{"22P02", CodeInvariantViolation},
		{"40P01", CodeRetryable},
		{"XX000", CodeInternal},
	}
	for _, tc := range cases {
		err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: tc.code, Message: "boom"})
		if got := CodeOf(MapError("op", err)); got != tc.want {
			t.Fatalf("pg code %s: got=%q want=%q", tc.code, got, tc.want)
		}
	}
}

func TestDiagnose(t *testing.T) {
	err := fmt.Errorf("upsert served notice: %w", &pgconn.PgError{
		Code:           "22003",
		Message:        "value \"3012345678\" is out of range for type integer",
		TableName:      "served_notices",
		ColumnName:     "notice_id",
		ConstraintName: "",
	})
	d := Diagnose(err)
	if d.Code != "22003" || d.Table != "served_notices" || d.Column != "notice_id" {
		t.Fatalf("unexpected diagnostics: %+v", d)
	}
	fields := d.LogFields()
	if len(fields)%2 != 0 {
		t.Fatalf("log fields must be key/value pairs: %v", fields)
	}

	plain := Diagnose(errors.New("sqlite: constraint failed"))
	if plain.Code != "" || plain.Message == "" {
		t.Fatalf("unexpected plain diagnostics: %+v", plain)
	}
}
