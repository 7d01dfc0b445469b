package store_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/runflow/pkg/runflow"
	"github.com/randalmurphal/runflow/pkg/runflow/config"
	"github.com/randalmurphal/runflow/pkg/runflow/store"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) store.Store

func memoryFactory(t *testing.T) store.Store {
	return store.NewMemoryStore()
}

func sqliteFactory(t *testing.T) store.Store {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	return s
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContractTest(t, memoryFactory)
}

func TestSQLiteStore_Contract(t *testing.T) {
	storeContractTest(t, sqliteFactory)
}

func sampleGraph() *runflow.GraphSpec {
	return &runflow.GraphSpec{
		Nodes: []runflow.NodeSpec{
			{Name: "a", Fn: "fa", Params: map[string]any{"limit": "5"}},
			{Name: "b", Fn: "fb"},
		},
		Edges: map[string]runflow.Edge{
			"a": runflow.Branch("x > 1", "b", ""),
			"b": runflow.End(),
		},
	}
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, factory storeFactory) {
	t.Run("SaveGraph_and_Lookup", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		id, err := s.SaveGraph(sampleGraph())
		require.NoError(t, err)
		assert.Len(t, id, 32)
		assert.NotContains(t, id, "-")

		got, err := s.LookupGraph(id)
		require.NoError(t, err)
		assert.Equal(t, sampleGraph(), got)

		ids, err := s.ListGraphs()
		require.NoError(t, err)
		assert.Equal(t, []string{id}, ids)
	})

	t.Run("LookupGraph_NotFound", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.LookupGraph("missing")
		assert.ErrorIs(t, err, runflow.ErrGraphNotFound)
	})

	t.Run("LookupGraph_ReturnsCopy", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		id, err := s.SaveGraph(sampleGraph())
		require.NoError(t, err)

		got, err := s.LookupGraph(id)
		require.NoError(t, err)
		got.Nodes[0].Name = "changed"
		got.Nodes[0].Params["limit"] = "99"

		again, err := s.LookupGraph(id)
		require.NoError(t, err)
		assert.Equal(t, "a", again.Nodes[0].Name)
		assert.Equal(t, "5", again.Nodes[0].Params["limit"])
	})

	t.Run("Create_and_Get", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		id, err := s.Create("g1", runflow.State{"code": "x = 1"})
		require.NoError(t, err)

		r, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, id, r.ID)
		assert.Equal(t, "g1", r.GraphID)
		assert.Equal(t, runflow.StatusPending, r.Status)
		assert.Equal(t, "x = 1", r.CurrentState["code"])
		assert.Empty(t, r.Logs)
		assert.False(t, r.CreatedAt.IsZero())
	})

	t.Run("Create_CopiesInitialState", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		initial := runflow.State{"k": "v"}
		id, err := s.Create("g", initial)
		require.NoError(t, err)
		initial["k"] = "mutated"

		r, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, "v", r.CurrentState["k"])
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.Get("missing")
		assert.ErrorIs(t, err, runflow.ErrRunNotFound)
	})

	t.Run("Update_PartialFields", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		id, err := s.Create("g", runflow.State{"a": "1"})
		require.NoError(t, err)

		node := "n1"
		steps := 3
		require.NoError(t, s.Update(id, runflow.RunUpdate{CurrentNode: &node, Steps: &steps}))
		require.NoError(t, s.Update(id, runflow.SetStatus(runflow.StatusRunning)))

		r, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, "n1", r.CurrentNode)
		assert.Equal(t, 3, r.Steps)
		assert.Equal(t, runflow.StatusRunning, r.Status)
		assert.Equal(t, "1", r.CurrentState["a"], "state must be untouched")

		require.NoError(t, s.Update(id, runflow.Fail("boom")))
		r, err = s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, runflow.StatusFailed, r.Status)
		assert.Equal(t, "boom", r.Error)
	})

	t.Run("AppendLog_OrderedSnapshots", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		id, err := s.Create("g", nil)
		require.NoError(t, err)

		state := runflow.State{"step": "one"}
		require.NoError(t, s.AppendLog(id, "a", "starting node a", state))
		state["step"] = "two"
		require.NoError(t, s.AppendLog(id, "a", "completed node a", state))

		r, err := s.Get(id)
		require.NoError(t, err)
		require.Len(t, r.Logs, 2)
		assert.Equal(t, "starting node a", r.Logs[0].Message)
		assert.Equal(t, "one", r.Logs[0].StateSnapshot["step"], "snapshot must not follow later mutation")
		assert.Equal(t, "two", r.Logs[1].StateSnapshot["step"])
		assert.Equal(t, "a", r.Logs[1].Node)
	})

	t.Run("Get_ReturnsDeepCopy", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		id, err := s.Create("g", runflow.State{"nested": map[string]any{"k": "v"}})
		require.NoError(t, err)
		require.NoError(t, s.AppendLog(id, "a", "m", runflow.State{"x": "1"}))

		r, err := s.Get(id)
		require.NoError(t, err)
		r.CurrentState["nested"].(map[string]any)["k"] = "changed"
		r.Logs[0].StateSnapshot["x"] = "changed"

		again, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, "v", again.CurrentState["nested"].(map[string]any)["k"])
		assert.Equal(t, "1", again.Logs[0].StateSnapshot["x"])
	})

	t.Run("Finish_SetsFinished", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		id, err := s.Create("g", nil)
		require.NoError(t, err)
		require.NoError(t, s.Update(id, runflow.SetStatus(runflow.StatusRunning)))
		require.NoError(t, s.Finish(id, runflow.State{"done": true}))

		r, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, runflow.StatusFinished, r.Status)
		assert.Equal(t, true, r.CurrentState["done"])
	})

	t.Run("Finish_KeepsTerminalStatus", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		id, err := s.Create("g", nil)
		require.NoError(t, err)
		require.NoError(t, s.Update(id, runflow.Fail("node failed")))
		require.NoError(t, s.Finish(id, runflow.State{"final": "yes"}))

		r, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, runflow.StatusFailed, r.Status)
		assert.Equal(t, "yes", r.CurrentState["final"])
	})

	t.Run("UnknownRun_NoOps", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		assert.NoError(t, s.Update("missing", runflow.SetStatus(runflow.StatusRunning)))
		assert.NoError(t, s.AppendLog("missing", "a", "m", nil))
		assert.NoError(t, s.Finish("missing", nil))

		runs, err := s.List()
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("List_InCreationOrder", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		var ids []string
		for i := 0; i < 3; i++ {
			id, err := s.Create(fmt.Sprintf("g%d", i), nil)
			require.NoError(t, err)
			ids = append(ids, id)
		}

		runs, err := s.List()
		require.NoError(t, err)
		require.Len(t, runs, 3)
		for i, r := range runs {
			assert.Equal(t, ids[i], r.ID)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close(), "close must be idempotent")

		_, err := s.Create("g", nil)
		assert.ErrorIs(t, err, store.ErrStoreClosed)
		_, err = s.SaveGraph(sampleGraph())
		assert.ErrorIs(t, err, store.ErrStoreClosed)
		assert.ErrorIs(t, s.Update("x", runflow.RunUpdate{}), store.ErrStoreClosed)
	})

	t.Run("Concurrent_AppendLog", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		id, err := s.Create("g", nil)
		require.NoError(t, err)

		const writers = 10
		const perWriter = 10
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					assert.NoError(t, s.AppendLog(id, fmt.Sprintf("n%d", w), "m", runflow.State{"i": i}))
					_, _ = s.Get(id)
				}
			}(w)
		}
		wg.Wait()

		r, err := s.Get(id)
		require.NoError(t, err)
		assert.Len(t, r.Logs, writers*perWriter)
	})
}

func TestOpen(t *testing.T) {
	s, err := store.Open(config.Defaults())
	require.NoError(t, err)
	_, isMemory := s.(*store.MemoryStore)
	assert.True(t, isMemory)
	require.NoError(t, s.Close())

	settings := config.Defaults()
	settings.Store = config.StoreSQLite
	settings.SQLitePath = ":memory:"
	s, err = store.Open(settings)
	require.NoError(t, err)
	_, isSQLite := s.(*store.SQLiteStore)
	assert.True(t, isSQLite)
	require.NoError(t, s.Close())

	settings.Store = "redis"
	_, err = store.Open(settings)
	assert.Error(t, err)
}
