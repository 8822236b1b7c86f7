package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := newConn("a")

	assert.True(t, r.Add("7", a))
	assert.False(t, r.Add("7", a))
	assert.Equal(t, []string{"a"}, ids(r.MembersOf("7")))
}

func TestRegistry_RemoveDropsEmptySession(t *testing.T) {
	r := NewRegistry()
	a, b := newConn("a"), newConn("b")
	r.Add("7", a)
	r.Add("7", b)

	r.Remove("7", a)
	sessions, conns := r.Stats()
	assert.Equal(t, 1, sessions)
	assert.Equal(t, 1, conns)

	r.Remove("7", b)
	sessions, conns = r.Stats()
	assert.Zero(t, sessions)
	assert.Zero(t, conns)
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Remove("nope", newConn("a"))
	r.RemoveEverywhere(newConn("a"))
	assert.Empty(t, r.MembersOf("nope"))
}

func TestRegistry_RemoveEverywhere(t *testing.T) {
	r := NewRegistry()
	a, b := newConn("a"), newConn("b")
	r.Add("1", a)
	r.Add("2", a)
	r.Add("2", b)

	r.RemoveEverywhere(a, "1", "2")

	assert.Empty(t, r.MembersOf("1"))
	assert.Equal(t, []string{"b"}, ids(r.MembersOf("2")))
}

func TestRegistry_MembersOfIsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Add("7", newConn("a"))

	members := r.MembersOf("7")
	r.Add("7", newConn("b"))

	assert.Len(t, members, 1)
	assert.Len(t, r.MembersOf("7"), 2)
}

func TestRegistry_MembersOfUnknownSession(t *testing.T) {
	r := NewRegistry()
	members := r.MembersOf("missing")
	assert.NotNil(t, members)
	assert.Empty(t, members)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newConn(fmt.Sprintf("c%d", i))
			session := fmt.Sprintf("s%d", i%4)
			r.Add(session, c)
			_ = r.MembersOf(session)
			if i%2 == 0 {
				r.Remove(session, c)
			}
		}(i)
	}
	wg.Wait()

	sessions, conns := r.Stats()
	assert.Equal(t, 2, sessions, "only odd connections stay, and they land in s1 and s3")
	assert.Equal(t, 50, conns)
}
