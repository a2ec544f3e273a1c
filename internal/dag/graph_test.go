package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/sparkflow/internal/operator"
)

func loadOp(table string) *operator.LoadDimension {
	return &operator.LoadDimension{
		DestinationTable: table,
		TransformQuery:   "SELECT * FROM src_" + table,
	}
}

// buildGraph adds one load node per id and the given edges as "from>to" pairs
func buildGraph(t *testing.T, retry RetryPolicy, ids []string, edges ...[2]string) *Graph {
	t.Helper()
	g := NewGraph()
	for _, id := range ids {
		require.NoError(t, g.AddNode(id, loadOp(id), retry))
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func TestGraph_AddNode(t *testing.T) {
	g := NewGraph()

	require.NoError(t, g.AddNode("a", loadOp("a"), DefaultRetryPolicy()))

	var gerr *GraphError
	assert.ErrorAs(t, g.AddNode("a", loadOp("a"), NoRetry()), &gerr)
	assert.ErrorAs(t, g.AddNode("", loadOp("x"), NoRetry()), &gerr)
	assert.ErrorAs(t, g.AddNode("b", nil, NoRetry()), &gerr)

	node, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, DefaultRetryPolicy(), node.Retry)
}

func TestGraph_RetryNormalized(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", loadOp("a"), RetryPolicy{MaxAttempts: 0, BackoffDelay: -1}))

	node, _ := g.Node("a")
	assert.Equal(t, 1, node.Retry.MaxAttempts)
	assert.Zero(t, node.Retry.BackoffDelay)
}

func TestGraph_AddEdgeRejects(t *testing.T) {
	g := buildGraph(t, NoRetry(), []string{"a", "b"}, [2]string{"a", "b"})

	var gerr *GraphError
	assert.ErrorAs(t, g.AddEdge("a", "missing"), &gerr)
	assert.ErrorAs(t, g.AddEdge("missing", "a"), &gerr)
	assert.ErrorAs(t, g.AddEdge("a", "a"), &gerr, "self edge")
	assert.ErrorAs(t, g.AddEdge("a", "b"), &gerr, "duplicate edge")
}

func TestGraph_CycleDetected(t *testing.T) {
	g := buildGraph(t, NoRetry(), []string{"a", "b", "c", "d"},
		[2]string{"d", "a"}, [2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "a"})

	err := g.Validate()

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "c"}, cycle.Nodes)
	assert.NotContains(t, cycle.Nodes, "d")
	assert.Equal(t, "dependency cycle detected: a -> b -> c -> a", err.Error())
	assert.False(t, g.Frozen())

	_, err = g.TopologicalOrder()
	assert.ErrorAs(t, err, &cycle)
}

func TestGraph_RedundantEdgeRejected(t *testing.T) {
	g := buildGraph(t, NoRetry(), []string{"a", "b", "c"},
		[2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"a", "c"})

	var gerr *GraphError
	require.ErrorAs(t, g.Validate(), &gerr)
	assert.Equal(t, "c", gerr.Node)
	assert.Contains(t, gerr.Error(), "implied by the path through b")
}

func TestGraph_InvalidOperator(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", &operator.LoadFact{DestinationTable: "songplays"}, NoRetry()))

	var gerr *GraphError
	require.ErrorAs(t, g.Validate(), &gerr)
	assert.Equal(t, "a", gerr.Node)
	assert.NotNil(t, errors.Unwrap(gerr))
}

func TestGraph_FrozenAfterValidate(t *testing.T) {
	g := buildGraph(t, NoRetry(), []string{"a", "b"}, [2]string{"a", "b"})
	require.NoError(t, g.Validate())
	require.NoError(t, g.Validate())

	assert.True(t, g.Frozen())
	assert.ErrorIs(t, g.AddNode("c", loadOp("c"), NoRetry()), ErrGraphFrozen)
	assert.ErrorIs(t, g.AddEdge("b", "a"), ErrGraphFrozen)
}

func TestGraph_Accessors(t *testing.T) {
	// stage_events, stage_songs -> songplays -> four dims -> quality
	ids := []string{"stage_events", "stage_songs", "songplays", "users", "songs", "artists", "time", "quality"}
	edges := [][2]string{
		{"stage_events", "songplays"}, {"stage_songs", "songplays"},
		{"songplays", "users"}, {"songplays", "songs"}, {"songplays", "artists"}, {"songplays", "time"},
		{"users", "quality"}, {"songs", "quality"}, {"artists", "quality"}, {"time", "quality"},
	}
	g := buildGraph(t, NoRetry(), ids, edges...)
	require.NoError(t, g.Validate())

	assert.Equal(t, 8, g.Len())
	assert.Equal(t, []string{"stage_events", "stage_songs"}, g.Roots())
	assert.Equal(t, []string{"stage_events", "stage_songs"}, g.Upstream("songplays"))
	assert.Equal(t, []string{"artists", "songs", "time", "users"}, g.Downstream("songplays"))
	assert.Equal(t, []string{"artists", "quality", "songplays", "songs", "time", "users"}, g.Descendants("stage_songs"))
	assert.Empty(t, g.Descendants("quality"))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"stage_events", "stage_songs", "songplays",
		"artists", "songs", "time", "users", "quality",
	}, order)
}

func TestGraph_EmptyIsValid(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Validate())
	assert.Empty(t, g.Roots())
}
