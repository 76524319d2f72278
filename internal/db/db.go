package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"records-rag/internal/helper"
	"records-rag/internal/models"
)

// Unit is one exact-match unit. Every exact collection shares the table and
// is told apart by Collection.
type Unit struct {
	bun.BaseModel `bun:"table:units,alias:u"`

	Seq        int64           `bun:"seq,pk,autoincrement"`
	Collection string          `bun:"collection,notnull,unique:collection_unit"`
	UnitID     string          `bun:"unit_id,notnull,unique:collection_unit"`
	RecordID   string          `bun:"record_id,notnull"`
	Content    string          `bun:"content,notnull"`
	Metadata   models.Metadata `bun:"metadata"`
	CreatedAt  time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Open connects to the exact store. postgres:// DSNs go through pgdriver,
// everything else is handed to the SQLite driver.
func Open(dsn string, debug bool) (*bun.DB, error) {
	var db *bun.DB
	if isPostgres(dsn) {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		if path := sqlitePath(dsn); path != "" {
			if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
				return nil, err
			}
		}
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// one connection: SQLite serialises writers anyway and :memory:
		// databases are per connection
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	log.Debug().Str("dialect", db.Dialect().Name().String()).Msg("opened exact store")
	return db, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// sqlitePath returns the file behind a SQLite DSN, or "" for in-memory
// databases.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	return path
}

// InitDB creates the units table and its lookup index.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*Unit)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create units table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*Unit)(nil)).
		Index("units_record_idx").
		Column("collection", "record_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create units index: %w", err)
	}
	return nil
}

// DropUnits drops the units table with every exact collection in it.
func DropUnits(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Unit)(nil)).IfExists().Exec(ctx)
	return err
}

// containsExpr is a case-sensitive substring test in the active dialect.
func containsExpr(db *bun.DB) string {
	if db.Dialect().Name() == dialect.PG {
		return "strpos(content, ?) > 0"
	}
	return "instr(content, ?) > 0"
}
