package sql

import (
	"database/sql"

	"github.com/arloliu/causeway/types"
)

// collectRows reads all rows into column-keyed maps and closes rows.
//
// Byte slices are copied into strings because the driver may reuse them.
func collectRows(rows *sql.Rows) ([]types.Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []types.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(types.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}

	return out, rows.Err()
}
