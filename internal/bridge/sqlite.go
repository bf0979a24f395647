package bridge

import (
	"fmt"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed" // SQLite engine
)

// readRows runs the first statement of query on a read-only connection
// to path. Values follow the storage class SQLite reports for each cell,
// whatever type the column was declared with.
func readRows(path, query string) (rows []Row, err error) {
	conn, err := sqlite3.OpenFlags(path, sqlite3.OPEN_READONLY)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing database: %w", cerr)
		}
	}()

	stmt, _, err := conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		// Blank query or comment only.
		return []Row{}, nil
	}
	defer stmt.Close() //nolint:errcheck // Step errors are reported by Err

	columns := make([]string, stmt.ColumnCount())
	for i := range columns {
		columns[i] = stmt.ColumnName(i)
	}

	rows = []Row{}
	for stmt.Step() {
		var row Row
		for i, col := range columns {
			row.Set(col, columnValue(stmt, i))
		}
		rows = append(rows, row)
	}
	if err := stmt.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func columnValue(stmt *sqlite3.Stmt, col int) Value {
	switch stmt.ColumnType(col) {
	case sqlite3.INTEGER:
		return Integer(stmt.ColumnInt64(col))
	case sqlite3.FLOAT:
		return Real(stmt.ColumnFloat(col))
	case sqlite3.TEXT:
		return Text(stmt.ColumnText(col))
	case sqlite3.NULL:
		return Null()
	default:
		return Omitted()
	}
}
