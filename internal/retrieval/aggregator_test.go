package retrieval

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/schemactx/internal/vectorstore"
)

func result(docType, name string, relevance float64) RankedResult {
	return RankedResult{
		Content:   "Table: " + name,
		Metadata:  vectorstore.Metadata{vectorstore.KeyType: docType, "table_name": name},
		Relevance: relevance,
	}
}

func TestAggregator_GroupsByType(t *testing.T) {
	a := NewAggregator()

	sc, err := a.Aggregate([]RankedResult{
		result("table", "orders", 0.9),
		result("relationship", "orders->customers", 0.8),
		result("table", "customers", 0.7),
	})
	require.NoError(t, err)

	require.Len(t, sc.Tables(), 2)
	assert.Equal(t, 0.9, sc.Tables()[0].Relevance)
	assert.Equal(t, 0.7, sc.Tables()[1].Relevance)
	require.Len(t, sc.Relationships(), 1)
	assert.Equal(t, 3, sc.Len())
	assert.Equal(t, []string{GroupTables, GroupRelationships}, sc.Groups())
}

func TestAggregator_UnknownTypeFails(t *testing.T) {
	a := NewAggregator()

	sc, err := a.Aggregate([]RankedResult{
		result("table", "orders", 1),
		result("index", "orders_pkey", 1),
	})
	require.Error(t, err)
	assert.Nil(t, sc)
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), `"index"`)
}

func TestAggregator_MissingTypeFails(t *testing.T) {
	_, err := NewAggregator().Aggregate([]RankedResult{{Content: "x", Metadata: vectorstore.Metadata{}}})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestAggregator_WithKind(t *testing.T) {
	a := NewAggregator(WithKind("view", "views"), WithKind("materialized_view", "views"))

	sc, err := a.Aggregate([]RankedResult{
		result("view", "active_customers", 1),
		result("materialized_view", "daily_sales", 1),
		result("table", "orders", 1),
	})
	require.NoError(t, err)

	assert.Len(t, sc.Group("views"), 2)
	assert.Len(t, sc.Tables(), 1)
	assert.Empty(t, sc.Relationships())
	assert.Equal(t, []string{GroupTables, GroupRelationships, "views"}, sc.Groups())
}

func TestAggregator_Empty(t *testing.T) {
	sc := NewAggregator().Empty()

	assert.NotNil(t, sc.Tables())
	assert.Empty(t, sc.Tables())
	assert.NotNil(t, sc.Relationships())
	assert.Zero(t, sc.Len())
	assert.Nil(t, sc.Group("views"))
}

func TestSchemaContext_MarshalJSON(t *testing.T) {
	t.Run("empty groups are arrays", func(t *testing.T) {
		out, err := json.Marshal(NewAggregator().Empty())
		require.NoError(t, err)
		assert.JSONEq(t, `{"tables":[],"relationships":[]}`, string(out))
		assert.Equal(t, `{"tables":[],"relationships":[]}`, string(out))
	})

	t.Run("results", func(t *testing.T) {
		sc, err := NewAggregator().Aggregate([]RankedResult{result("table", "orders", 0.75)})
		require.NoError(t, err)

		out, err := json.Marshal(sc)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"tables": [{
				"content": "Table: orders",
				"metadata": {"type": "table", "table_name": "orders"},
				"relevance": 0.75
			}],
			"relationships": []
		}`, string(out))
	})

	t.Run("embedding included when set", func(t *testing.T) {
		r := result("table", "orders", 1)
		r.Embedding = []float32{0.5, -0.5}
		sc, err := NewAggregator().Aggregate([]RankedResult{r})
		require.NoError(t, err)

		out, err := json.Marshal(sc)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"embedding":[0.5,-0.5]`)
	})
}

func TestRelevance(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{0.5, 0.75},
		{1, 0.5},
		{2, 0},
		{-0.1, 1},
		{2.5, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Relevance(tt.distance), 1e-12, "distance %v", tt.distance)
	}
}

func TestRelevance_Monotonic(t *testing.T) {
	prev := Relevance(-1)
	for d := -1.0; d <= 3.0; d += 0.01 {
		r := Relevance(d)
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
		assert.LessOrEqual(t, r, prev, "relevance increased at distance %v", d)
		prev = r
	}
}
