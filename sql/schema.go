package sql

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/go-llsqlite/crawshaw/sqlitex"
	"go.uber.org/zap"
)

// SchemaVersion is the version of the database schema.
const SchemaVersion = 1

//go:embed schema.sql
var schemaScript string

func version(db Executor) (int, error) {
	var current int
	if _, err := db.Exec("PRAGMA user_version;", nil, func(stmt *Statement) bool {
		current = stmt.ColumnInt(0)
		return true
	}); err != nil {
		return 0, fmt.Errorf("read user_version %w", err)
	}
	return current, nil
}

// Version returns the schema version of the database.
func Version(db Executor) (int, error) {
	return version(db)
}

func applySchema(logger *zap.Logger, db *Database) error {
	v, err := version(db)
	switch {
	case err != nil:
		return err
	case v > SchemaVersion:
		return fmt.Errorf("%w: %d > %d", ErrTooNew, v, SchemaVersion)
	case v == SchemaVersion:
		return nil
	}
	conn := db.getConn(context.Background())
	if conn == nil {
		return ErrNoConnection
	}
	defer db.pool.Put(conn)
	logger.Info("creating database schema", zap.Int("version", SchemaVersion))
	script := fmt.Sprintf("%s\nPRAGMA user_version = %d;\n", schemaScript, SchemaVersion)
	if err := sqlitex.ExecScript(conn, script); err != nil {
		return fmt.Errorf("error running schema script: %w", err)
	}
	return nil
}
