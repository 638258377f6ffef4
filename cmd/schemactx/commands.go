package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/schemactx/internal/retrieval"
	"github.com/fyrsmithlabs/schemactx/internal/schema"
)

func newIngestCmd(g *globalFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a JSON schema description",
		Long: `Ingest renders every table and relationship of a schema description into a
document, embeds it and stores it for the given user and connection.
Re-ingesting an element replaces its previous document.

Examples:
  # Ingest from a file
  schemactx ingest --user alice --connection prod --file schema.json

  # Ingest from stdin
  cat schema.json | schemactx ingest --user alice --connection prod --file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := readSchema(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return run(cmd.Context(), g, cmd.ErrOrStderr(), func(ctx context.Context, a *app) error {
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

	cmd.Flags().StringVarP(&file, "file", "f", "-", "schema JSON file, or - for stdin")
	return cmd
}

func readSchema(stdin io.Reader, file string) (*schema.Schema, error) {
	if file == "" || file == "-" {
		return schema.Decode(stdin)
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()
	return schema.Decode(f)
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var (
		k                 int
		schemaName        string
		includeEmbeddings bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve the schema elements most relevant to a query",
		Long: `Search embeds the query and returns the k closest tables and relationships
of the given user and connection, each with a relevance in [0, 1].

Examples:
  schemactx search --user alice --connection prod "orders placed by customers"
  schemactx search --user alice --connection prod -k 10 --schema sales "revenue per region"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), g, cmd.ErrOrStderr(), func(ctx context.Context, a *app) error {
				if !cmd.Flags().Changed("top-k") {
					k = a.cfg.Retrieval.DefaultK
				}
				sc, err := a.engine.Search(ctx, retrieval.SearchRequest{
					Query:             strings.Join(args, " "),
					Tenant:            g.tenant(),
					SchemaName:        schemaName,
					K:                 k,
					IncludeEmbeddings: includeEmbeddings,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), sc)
			})
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of results (default from retrieval.default_k)")
	cmd.Flags().StringVar(&schemaName, "schema", "", "restrict results to one database schema")
	cmd.Flags().BoolVar(&includeEmbeddings, "include-embeddings", false, "include document vectors in the output")
	return cmd
}

func newGetAllCmd(g *globalFlags) *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:   "get-all",
		Short: "List every stored table and relationship",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), g, cmd.ErrOrStderr(), func(ctx context.Context, a *app) error {
				sc, err := a.engine.GetAll(ctx, g.tenant(), schemaName)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), sc)
			})
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "restrict results to one database schema")
	return cmd
}

// dropResult is the output of the drop command.
type dropResult struct {
	Removed int `json:"removed"`
}

func newDropCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "Delete every document of a connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.tenant().Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), g, cmd.ErrOrStderr(), func(ctx context.Context, a *app) error {
				removed, err := a.engine.DropConnection(ctx, g.tenant())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), dropResult{Removed: removed})
			})
		},
	}
}
