package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/schemactx/internal/vectorstore"
)

const shopSchema = `{
  "name": "shop",
  "tables": [
    {
      "name": "customers",
      "db_schema": "public",
      "columns": [
        {"name": "id", "data_type": "integer", "is_primary_key": true},
        {"name": "email", "data_type": "varchar", "max_length": 255}
      ],
      "primary_keys": ["id"]
    },
    {
      "name": "orders",
      "db_schema": "public",
      "columns": [
        {"name": "id", "data_type": "integer", "is_primary_key": true},
        {"name": "customer_id", "data_type": "integer"},
        {"name": "total_amount", "data_type": "numeric", "is_nullable": true}
      ],
      "primary_keys": ["id"],
      "foreign_keys": {"customer_id": "customers.id"}
    }
  ],
  "relationships": [
    {
      "source_table": "orders",
      "source_column": "customer_id",
      "target_table": "customers",
      "target_column": "id",
      "type": "many_to_one"
    }
  ]
}`

// setupEnv isolates configuration and persists the memory store to a
// snapshot so that state survives between command invocations.
func setupEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SCHEMACTX_MEMORY_SNAPSHOT_PATH", filepath.Join(home, "store.snap"))
	t.Setenv("SCHEMACTX_LOGGING_LEVEL", "warn")

	path := filepath.Join(home, "shop.json")
	require.NoError(t, os.WriteFile(path, []byte(shopSchema), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

type groups map[string][]struct {
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Relevance float64           `json:"relevance"`
	Embedding []float32         `json:"embedding"`
}

func decodeGroups(t *testing.T, out string) groups {
	t.Helper()
	var g groups
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	return g
}

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
		assert.NotEmpty(t, c.Short, "command %s has no Short description", c.Name())
	}
	for _, want := range []string{"ingest", "search", "get-all", "drop", "introspect"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	for _, flag := range []string{"config", "user", "connection"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "missing persistent flag --%s", flag)
	}
}

func TestLifecycle(t *testing.T) {
	schemaFile := setupEnv(t)
	tenant := []string{"--user", "alice", "--connection", "prod"}

	out, _, err := execute(t, append([]string{"ingest", "--file", schemaFile}, tenant...)...)
	require.NoError(t, err)

	var report struct {
		Tables        int      `json:"tables"`
		Relationships int      `json:"relationships"`
		Written       []string `json:"written"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Tables)
	assert.Equal(t, 1, report.Relationships)
	assert.Len(t, report.Written, 3)

	out, _, err = execute(t, append([]string{"get-all"}, tenant...)...)
	require.NoError(t, err)
	all := decodeGroups(t, out)
	require.Len(t, all["tables"], 2)
	require.Len(t, all["relationships"], 1)
	for _, r := range all["tables"] {
		assert.Equal(t, 1.0, r.Relevance)
		assert.Equal(t, "alice", r.Metadata[vectorstore.KeyUserID])
	}

	out, _, err = execute(t, append([]string{"search", "-k", "1", "orders", "total", "amount"}, tenant...)...)
	require.NoError(t, err)
	found := decodeGroups(t, out)
	assert.Equal(t, 1, len(found["tables"])+len(found["relationships"]))

	out, _, err = execute(t, append([]string{"search", "--include-embeddings", "customers"}, tenant...)...)
	require.NoError(t, err)
	found = decodeGroups(t, out)
	require.Len(t, found["tables"], 2)
	assert.Len(t, found["tables"][0].Embedding, 512)
	for _, r := range found["tables"] {
		assert.GreaterOrEqual(t, r.Relevance, 0.0)
		assert.LessOrEqual(t, r.Relevance, 1.0)
	}

	// Another connection of the same user sees nothing.
	out, _, err = execute(t, "get-all", "--user", "alice", "--connection", "staging")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tables":[],"relationships":[]}`, out)

	out, _, err = execute(t, append([]string{"drop"}, tenant...)...)
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed":3}`, out)

	out, _, err = execute(t, append([]string{"get-all"}, tenant...)...)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tables":[],"relationships":[]}`, out)
}

func TestIngest_FromStdin(t *testing.T) {
	setupEnv(t)

	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewBufferString(shopSchema))
	cmd.SetArgs([]string{"ingest", "--user", "bob", "--connection", "dev"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, stdout.String(), `"tables": 2`)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		wantErr string
	}{
		{
			name:    "search without tenant",
			args:    []string{"search", "orders"},
			wantErr: "user_id",
		},
		{
			name:    "search without query",
			args:    []string{"search", "--user", "alice", "--connection", "prod"},
			wantErr: "requires at least 1 arg",
		},
		{
			name:    "search with non-positive k",
			args:    []string{"search", "--user", "alice", "--connection", "prod", "-k", "0", "orders"},
			wantErr: "k must be positive",
		},
		{
			name:    "drop without connection",
			args:    []string{"drop", "--user", "alice"},
			wantErr: "missing connection_id",
		},
		{
			name:    "ingest invalid schema",
			args:    []string{"ingest", "--user", "alice", "--connection", "prod"},
			stdin:   `{"name": "", "tables": []}`,
			wantErr: "invalid schema",
		},
		{
			name:    "ingest malformed json",
			args:    []string{"ingest", "--user", "alice", "--connection", "prod"},
			stdin:   `{"name":`,
			wantErr: "decoding schema",
		},
		{
			name:    "ingest missing file",
			args:    []string{"ingest", "--user", "alice", "--connection", "prod", "--file", "/nonexistent/schema.json"},
			wantErr: "failed to open schema file",
		},
		{
			name:    "introspect without dsn",
			args:    []string{"introspect"},
			wantErr: errNoDSN.Error(),
		},
		{
			name:    "introspect ingest without tenant",
			args:    []string{"introspect", "--ingest", "--dsn", "postgres://localhost/shop"},
			wantErr: "user_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)

			cmd := newRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetIn(bytes.NewBufferString(tt.stdin))
			cmd.SetArgs(tt.args)

			err := cmd.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSearch_EmptyTenant(t *testing.T) {
	setupEnv(t)

	out, _, err := execute(t, "search", "--user", "carol", "--connection", "prod", "anything")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tables":[],"relationships":[]}`, out)
}
