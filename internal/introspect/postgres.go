// Package introspect extracts schema descriptions from live databases.
package introspect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemactx/internal/logging"
	"github.com/fyrsmithlabs/schemactx/internal/schema"
)

// DefaultDBSchema is the PostgreSQL schema read when none is given.
const DefaultDBSchema = "public"

const pingTimeout = 5 * time.Second

const (
	databaseQuery = `SELECT current_database()`

	columnsQuery = `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, c.character_maximum_length
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`

	primaryKeysQuery = `
		SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1
		ORDER BY kcu.table_name, kcu.ordinal_position`

	// Composite keys are paired column by column through the ordinality of
	// conkey/confkey.
	foreignKeysQuery = `
		SELECT src.relname, sa.attname, dst.relname, da.attname
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class src ON src.oid = con.conrelid
		JOIN pg_catalog.pg_namespace ns ON ns.oid = src.relnamespace
		JOIN pg_catalog.pg_class dst ON dst.oid = con.confrelid
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(src_attnum, dst_attnum, pos)
		JOIN pg_catalog.pg_attribute sa ON sa.attrelid = con.conrelid AND sa.attnum = k.src_attnum
		JOIN pg_catalog.pg_attribute da ON da.attrelid = con.confrelid AND da.attnum = k.dst_attnum
		WHERE con.contype = 'f' AND ns.nspname = $1
		ORDER BY src.relname, con.conname, k.pos`
)

// Postgres reads table, column and key definitions from information_schema.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// New wraps an open database handle. The caller keeps ownership of db.
func New(db *sql.DB, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, logger: logger}
}

// Open connects to the database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	return open(ctx, "postgres", dsn, logger)
}

func open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := New(db, logger)
	p.logger.Info("database connection established", logging.DSN("database", dsn))
	return p, nil
}

// Close closes the underlying database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Extract reads every base table of dbSchema. Foreign keys are reported both
// on their table and as many_to_one relationships.
func (p *Postgres) Extract(ctx context.Context, dbSchema string) (*schema.Schema, error) {
	if dbSchema == "" {
		dbSchema = DefaultDBSchema
	}

	var name string
	if err := p.db.QueryRowContext(ctx, databaseQuery).Scan(&name); err != nil {
		return nil, fmt.Errorf("reading database name: %w", err)
	}

	tables, index, err := p.columns(ctx, dbSchema)
	if err != nil {
		return nil, err
	}
	if err := p.primaryKeys(ctx, dbSchema, tables, index); err != nil {
		return nil, err
	}
	rels, err := p.foreignKeys(ctx, dbSchema, tables, index)
	if err != nil {
		return nil, err
	}

	s := &schema.Schema{Name: name, Tables: tables, Relationships: rels}
	p.logger.Info("schema extracted",
		zap.String("database", name),
		zap.String("db_schema", dbSchema),
		zap.Int("tables", len(tables)),
		zap.Int("relationships", len(rels)),
	)
	return s, nil
}

func (p *Postgres) columns(ctx context.Context, dbSchema string) ([]schema.Table, map[string]int, error) {
	rows, err := p.db.QueryContext(ctx, columnsQuery, dbSchema)
	if err != nil {
		return nil, nil, fmt.Errorf("reading columns: %w", err)
	}
	defer rows.Close()

	var tables []schema.Table
	index := make(map[string]int)
	for rows.Next() {
		var (
			table, column, dataType, nullable string
			maxLength                         sql.NullInt64
		)
		if err := rows.Scan(&table, &column, &dataType, &nullable, &maxLength); err != nil {
			return nil, nil, fmt.Errorf("scanning column: %w", err)
		}

		i, ok := index[table]
		if !ok {
			i = len(tables)
			index[table] = i
			tables = append(tables, schema.Table{Name: table, DBSchema: dbSchema})
		}

		col := schema.Column{
			Name:       column,
			DataType:   dataType,
			IsNullable: nullable == "YES",
		}
		if maxLength.Valid && maxLength.Int64 > 0 {
			n := int(maxLength.Int64)
			col.MaxLength = &n
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading columns: %w", err)
	}
	return tables, index, nil
}

func (p *Postgres) primaryKeys(ctx context.Context, dbSchema string, tables []schema.Table, index map[string]int) error {
	rows, err := p.db.QueryContext(ctx, primaryKeysQuery, dbSchema)
	if err != nil {
		return fmt.Errorf("reading primary keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("scanning primary key: %w", err)
		}
		i, ok := index[table]
		if !ok {
			continue
		}
		t := &tables[i]
		t.PrimaryKeys = append(t.PrimaryKeys, column)
		for c := range t.Columns {
			if t.Columns[c].Name == column {
				t.Columns[c].IsPrimaryKey = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading primary keys: %w", err)
	}
	return nil
}

func (p *Postgres) foreignKeys(ctx context.Context, dbSchema string, tables []schema.Table, index map[string]int) ([]schema.Relationship, error) {
	rows, err := p.db.QueryContext(ctx, foreignKeysQuery, dbSchema)
	if err != nil {
		return nil, fmt.Errorf("reading foreign keys: %w", err)
	}
	defer rows.Close()

	var rels []schema.Relationship
	for rows.Next() {
		var table, column, refTable, refColumn string
		if err := rows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		i, ok := index[table]
		if !ok {
			continue
		}
		t := &tables[i]
		if t.ForeignKeys == nil {
			t.ForeignKeys = make(map[string]string)
		}
		t.ForeignKeys[column] = refTable + "." + refColumn
		rels = append(rels, schema.Relationship{
			SourceTable:  table,
			SourceColumn: column,
			TargetTable:  refTable,
			TargetColumn: refColumn,
			Type:         schema.ManyToOne,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading foreign keys: %w", err)
	}
	return rels, nil
}
