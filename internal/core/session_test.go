package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_Lifecycle(t *testing.T) {
	m := NewSessionManager()
	idx := testIndex("abc")

	sess := m.Create("alice", "cred", idx)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, LoggedIn, sess.State())
	assert.Equal(t, "alice", sess.Username())
	assert.Same(t, idx, sess.Index())

	got, ok := m.Get(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)

	sess.Memory().Append(Turn{Question: "q", Answer: "a"})
	assert.True(t, m.End(sess.ID))
	assert.False(t, m.End(sess.ID))

	_, ok = m.Get(sess.ID)
	assert.False(t, ok)
	assert.Equal(t, LoggedOut, sess.State())
	assert.Empty(t, sess.Username())
	assert.Nil(t, sess.Index())
	assert.Equal(t, 0, sess.Memory().Len())
}

func TestSessionManager_Concurrent(t *testing.T) {
	m := NewSessionManager()

	var wg sync.WaitGroup
	ids := make(chan string, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- m.Create("alice", "cred", nil).ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 50)
	assert.Equal(t, 50, m.Count())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "logged_in", LoggedIn.String())
	assert.Equal(t, "logged_out", LoggedOut.String())
}
