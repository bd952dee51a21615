package fetch

import (
	"context"
	"database/sql"
	"fmt"

	"dashsync/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// fetchSQL runs the target's query verbatim against its configured database.
// Params: context and connection descriptor.
// Returns: materialized result set or connect/query error. The connection is
// closed unconditionally, also on query failure. The query text is trusted
// input from the owning user and is not rewritten.
func (f *Fetcher) fetchSQL(ctx context.Context, conn domain.Connection) (domain.Table, error) {
	driver, dsn, err := driverDSN(conn)
	if err != nil {
		return domain.Table{}, fetchErr(ErrConnect, err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return domain.Table{}, fetchErr(ErrConnect, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return domain.Table{}, fetchErr(ErrConnect, err)
	}

	rows, err := db.QueryContext(ctx, conn.Query)
	if err != nil {
		return domain.Table{}, fetchErr(ErrQuery, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return domain.Table{}, fetchErr(ErrQuery, err)
	}
	table := domain.Table{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return domain.Table{}, fetchErr(ErrQuery, err)
		}
		row := make([]any, len(values))
		for i, value := range values {
			if raw, ok := value.([]byte); ok {
				row[i] = string(raw)
				continue
			}
			row[i] = value
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return domain.Table{}, fetchErr(ErrQuery, err)
	}
	return table, nil
}

// driverDSN builds the driver name and DSN for one dialect.
// Params: connection descriptor.
// Returns: driver name, DSN string, or error for unknown dialects.
func driverDSN(conn domain.Connection) (string, string, error) {
	switch conn.Dialect {
	case domain.DialectMySQL:
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			conn.User, conn.Password, conn.Host, conn.Port, conn.Database), nil
	case domain.DialectPostgres:
		return "postgres", fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			conn.Host, conn.Port, conn.User, conn.Password, conn.Database), nil
	case domain.DialectSQLite:
		return "sqlite3", conn.Database, nil
	default:
		return "", "", fmt.Errorf("unknown sql dialect %q", conn.Dialect)
	}
}
