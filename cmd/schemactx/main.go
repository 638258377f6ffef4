// Command schemactx ingests database schema descriptions and answers
// natural-language schema-context queries against them.
//
// Usage:
//
//	# Ingest a schema description for one user's connection
//	schemactx ingest --user alice --connection prod --file schema.json
//
//	# Retrieve the tables and relationships relevant to a question
//	schemactx search --user alice --connection prod -k 5 "which customers placed orders"
//
//	# Read a live PostgreSQL catalog and ingest it
//	schemactx introspect --user alice --connection prod --dsn postgres://... --ingest
//
// Configuration is read from ~/.config/schemactx/config.yaml and SCHEMACTX_*
// environment variables.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath   string
	userID       string
	connectionID string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "schemactx",
		Short: "Schema-context retrieval for database assistants",
		Long: `schemactx stores embeddings of database tables and relationships per user
and connection, and retrieves the elements most relevant to a question.

Results are written to stdout as JSON; logs go to stderr.`,
		Version:      fmt.Sprintf("%s (%s)", version, gitCommit),
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "config file (default ~/.config/schemactx/config.yaml)")
	flags.StringVar(&g.userID, "user", "", "user id owning the documents")
	flags.StringVar(&g.connectionID, "connection", "", "database connection id")

	root.AddCommand(
		newIngestCmd(g),
		newSearchCmd(g),
		newGetAllCmd(g),
		newDropCmd(g),
		newIntrospectCmd(g),
	)
	return root
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
