package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrValidation indicates caller input validation failure.
	ErrValidation = errors.New("aggregate validation")
	// ErrInvariant indicates invariant rule violation.
	ErrInvariant = errors.New("aggregate invariant violation")
	// ErrConflict indicates a guarded write lost against a concurrent writer.
	ErrConflict = errors.New("aggregate conflict")
	// ErrRetryable indicates a transient failure worth resubmitting.
	ErrRetryable = errors.New("aggregate retryable")
)

// ValidationError tags an error as validation failure.
func ValidationError(msg string) error {
	return errors.Join(ErrValidation, errors.New(strings.TrimSpace(msg)))
}

// InvariantError tags an error as invariant violation.
func InvariantError(msg string) error {
	return errors.Join(ErrInvariant, errors.New(strings.TrimSpace(msg)))
}

// ConflictError tags an error as a write conflict.
func ConflictError(msg string) error {
	return errors.Join(ErrConflict, errors.New(strings.TrimSpace(msg)))
}

// RetryableError tags an error as transient.
func RetryableError(msg string) error {
	return errors.Join(ErrRetryable, errors.New(strings.TrimSpace(msg)))
}

// MapError maps infrastructure failures into aggregate error codes.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	switch {
	case errors.Is(err, ErrValidation):
		return Wrap(CodeValidation, op, err)
	case errors.Is(err, ErrInvariant):
		return Wrap(CodeInvariantViolation, op, err)
	case errors.Is(err, ErrConflict):
		return Wrap(CodeConflict, op, err)
	case errors.Is(err, ErrRetryable):
		return Wrap(CodeRetryable, op, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeRetryable, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return Wrap(CodeConflict, op, err) // unique_violation
		case pgErr.Code == "23503":
			return Wrap(CodePreconditionFailed, op, err) // foreign_key_violation
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03", pgErr.Code == "57014":
			return Wrap(CodeRetryable, op, err) // serialization/deadlock/lock/statement_timeout
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
			return Wrap(CodeInvariantViolation, op, err) // data exception / integrity
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return Wrap(CodeConflict, op, err)
	case strings.Contains(msg, "constraint"):
		return Wrap(CodeInvariantViolation, op, err)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "database is locked"):
		return Wrap(CodeRetryable, op, err)
	default:
		return Wrap(CodeInternal, op, err)
	}
}

// PgDiagnostics carries the fields an operator needs to find the failing
// column or constraint.
type PgDiagnostics struct {
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	DataType   string `json:"dataType,omitempty"`
	Where      string `json:"where,omitempty"`
}

// Diagnose extracts Postgres error fields when err wraps a pgconn.PgError.
// Other drivers only yield Message.
func Diagnose(err error) PgDiagnostics {
	if err == nil {
		return PgDiagnostics{}
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return PgDiagnostics{Message: err.Error()}
	}
	return PgDiagnostics{
		Code:       pgErr.Code,
		Message:    pgErr.Message,
		Detail:     pgErr.Detail,
		Hint:       pgErr.Hint,
		Table:      pgErr.TableName,
		Column:     pgErr.ColumnName,
		Constraint: pgErr.ConstraintName,
		DataType:   pgErr.DataTypeName,
		Where:      pgErr.Where,
	}
}

// LogFields flattens diagnostics into logger key/value pairs.
func (d PgDiagnostics) LogFields() []interface{} {
	out := []interface{}{"pg_message", d.Message}
	add := func(k, v string) {
		if v != "" {
			out = append(out, k, v)
		}
	}
	add("pg_code", d.Code)
	add("pg_detail", d.Detail)
	add("pg_hint", d.Hint)
	add("pg_table", d.Table)
	add("pg_column", d.Column)
	add("pg_constraint", d.Constraint)
	add("pg_data_type", d.DataType)
	add("pg_where", d.Where)
	return out
}
