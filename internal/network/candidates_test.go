package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidatePoolExpire(t *testing.T) {
	c := newCandidatePool(4, 200*time.Millisecond)

	assert.True(t, c.add("p1", "10.0.0.1:4000"))
	assert.False(t, c.add("p1", ""))
	addr, ok := c.addr("p1")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1:4000", addr)
	assert.Empty(t, c.expire())

	var expired []string
	require.Eventually(t, func() bool {
		expired = append(expired, c.expire()...)
		return len(expired) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"p1"}, expired)
	assert.Empty(t, c.list())
	_, ok = c.addr("p1")
	assert.False(t, ok)

	assert.True(t, c.add("p1", ""), "expired peer is new again")
	_, ok = c.addr("p1")
	assert.False(t, ok, "no address without one in the hello")
}

func TestCandidatePoolTouchRefreshes(t *testing.T) {
	c := newCandidatePool(4, 300*time.Millisecond)
	c.add("p1", "10.0.0.1:4000")
	for i := 0; i < 6; i++ {
		time.Sleep(100 * time.Millisecond)
		c.touch("p1")
	}
	assert.Empty(t, c.expire())
	addr, ok := c.addr("p1")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1:4000", addr)
}

func TestCandidatePoolEvictsOldest(t *testing.T) {
	c := newCandidatePool(2, time.Hour)
	c.add("a", "1")
	c.add("b", "2")
	c.touch("a")
	c.add("c", "3")
	assert.Equal(t, []string{"a", "c"}, c.list())
	assert.Equal(t, []string{"b"}, c.expire())
	assert.Empty(t, c.expire())
}

func TestDialBackoff(t *testing.T) {
	b := newDialBackoff(100*time.Millisecond, time.Second)
	assert.Equal(t, 100*time.Millisecond, b.delay("x"))
	b.recordFailure("x")
	assert.Equal(t, 100*time.Millisecond, b.delay("x"))
	b.recordFailure("x")
	b.recordFailure("x")
	assert.Equal(t, 400*time.Millisecond, b.delay("x"))
	for i := 0; i < 10; i++ {
		b.recordFailure("x")
	}
	assert.Equal(t, time.Second, b.delay("x"))
	b.resetFailures("x")
	assert.Equal(t, 100*time.Millisecond, b.delay("x"))
}
