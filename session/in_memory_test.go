package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/internal/testutil"
)

func newSession(id string, updated time.Time) *core.Session {
	return testutil.NewSessionBuilder(id).Updated(updated).Build()
}

func TestInMemoryStore_SaveGet(t *testing.T) {
	store := NewInMemoryStore(0)

	s := core.NewSession("s1", "What is 2+2?")
	s.RecordTask(core.Task{ID: "task_1", Index: 1, Description: "2+2", Result: "4"})
	require.NoError(t, store.Save(s))

	// mutations after save do not leak into the store
	s.Update(func(s *core.Session) { s.Answer = "changed" })

	got, err := store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "What is 2+2?", got.Question)
	assert.Empty(t, got.Answer)
	assert.Len(t, got.Tasks, 1)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestInMemoryStore_ListAndEvict(t *testing.T) {
	store := NewInMemoryStore(2)
	base := time.Now()

	require.NoError(t, store.Save(newSession("a", base)))
	require.NoError(t, store.Save(newSession("b", base.Add(time.Second))))
	require.NoError(t, store.Save(newSession("c", base.Add(2*time.Second))))

	all, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	one, err := store.List(1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "c", one[0].ID)

	_, err = store.Get("a")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}
