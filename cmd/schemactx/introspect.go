package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemactx/internal/introspect"
)

// errNoDSN is returned when neither --dsn nor introspect.dsn is set.
var errNoDSN = errors.New("no database DSN: pass --dsn or set introspect.dsn")

func newIntrospectCmd(g *globalFlags) *cobra.Command {
	var (
		dsn      string
		dbSchema string
		ingest   bool
	)

	cmd := &cobra.Command{
		Use:   "introspect",
		Short: "Read a PostgreSQL catalog into a schema description",
		Long: `Introspect reads the tables, columns, primary keys and foreign keys of one
PostgreSQL schema. Foreign keys become many_to_one relationships.

Without --ingest the schema description is printed; with --ingest it is
ingested for the given user and connection and the ingest report is printed.

Examples:
  schemactx introspect --dsn postgres://app@localhost/shop > schema.json
  schemactx introspect --user alice --connection prod --db-schema sales --ingest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ingest {
				if err := g.tenant().Validate(); err != nil {
					return err
				}
			}
			return run(cmd.Context(), g, cmd.ErrOrStderr(), func(ctx context.Context, a *app) error {
				if dsn == "" {
					dsn = a.cfg.Introspect.DSN.Value()
				}
				if dsn == "" {
					return errNoDSN
				}
				if dbSchema == "" {
					dbSchema = a.cfg.Introspect.DBSchema
				}

				pg, err := introspect.Open(ctx, dsn, a.logger.Zap())
				if err != nil {
					return err
				}
				defer func() {
					if cerr := pg.Close(); cerr != nil {
						a.logger.Warn(ctx, "failed to close database", zap.Error(cerr))
					}
				}()

				s, err := pg.Extract(ctx, dbSchema)
				if err != nil {
					return fmt.Errorf("introspecting %s: %w", dbSchema, err)
				}
				if !ingest {
					return writeJSON(cmd.OutOrStdout(), s)
				}

				report, err := a.engine.Ingest(ctx, g.tenant(), s)
				if report != nil {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string (default from introspect.dsn)")
	cmd.Flags().StringVar(&dbSchema, "db-schema", "", "PostgreSQL schema to read (default from introspect.db_schema)")
	cmd.Flags().BoolVar(&ingest, "ingest", false, "ingest the extracted schema instead of printing it")
	return cmd
}
