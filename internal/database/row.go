package database

import (
	"github.com/koustreak/querygate/internal/errs"
)

// ScanRows reads the column names and then at most limit rows from the
// result set. A negative limit reads every row. Column metadata is read
// before any row is consumed.
//
// The returned values slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows. Callers do not need to call Close().
func ScanRows(rows Rows, limit int) ([]string, [][]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindExecutionFailed, "failed to read column names", err)
	}

	result := make([][]any, 0)

	for limit < 0 || len(result) < limit {
		if !rows.Next() {
			break
		}

		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, nil, asKind(err, errs.ErrKindExecutionFailed, "failed to scan row")
		}
		result = append(result, normalizeValues(dest))
	}

	if err := rows.Err(); err != nil {
		return nil, nil, asKind(err, errs.ErrKindExecutionFailed, "error during row iteration")
	}

	return columns, result, nil
}

// normalizeValues turns driver byte slices into strings so results render
// and serialize as text.
func normalizeValues(values []any) []any {
	for i, value := range values {
		if b, ok := value.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values
}

// asKind keeps an already-classified *errs.Error and wraps anything else.
func asKind(err error, kind errs.ErrKind, msg string) error {
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return errs.Wrap(kind, msg, err)
}
