package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPLimiterConnCap(t *testing.T) {
	lim := newIPLimiter(1, 0)
	release := lim.acquireConn("1.2.3.4")
	require.NotNil(t, release, "first conn")
	assert.Nil(t, lim.acquireConn("1.2.3.4"), "conn cap")
	release()
	release()
	assert.NotNil(t, lim.acquireConn("1.2.3.4"), "acquire after release")
	assert.Nil(t, lim.acquireConn("1.2.3.4"), "double release must not free a second slot")
}

func TestIPLimiterStreamCap(t *testing.T) {
	lim := newIPLimiter(0, 2)
	first := lim.acquireStream("1.2.3.4")
	require.NotNil(t, first)
	require.NotNil(t, lim.acquireStream("1.2.3.4"))
	assert.Nil(t, lim.acquireStream("1.2.3.4"), "stream cap")
	first()
	assert.NotNil(t, lim.acquireStream("1.2.3.4"), "acquire after release")
}

func TestIPLimiterSeparateIPs(t *testing.T) {
	lim := newIPLimiter(1, 1)
	assert.NotNil(t, lim.acquireConn("1.2.3.4"))
	assert.NotNil(t, lim.acquireConn("2.3.4.5"))
	assert.NotNil(t, lim.acquireStream("1.2.3.4"))
	assert.NotNil(t, lim.acquireStream("2.3.4.5"))
}

func TestIPLimiterUnlimited(t *testing.T) {
	lim := newIPLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.NotNil(t, lim.acquireConn("1.2.3.4"), "conn %d", i)
	}
}
