package node

import (
	"bytes"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	sigCacheTTL   = 30 * time.Second
	sigCacheSweep = time.Minute
)

// sigCache remembers digests whose signature already verified.
type sigCache struct {
	c *cache.Cache
}

func newSigCache() *sigCache {
	return &sigCache{c: cache.New(sigCacheTTL, sigCacheSweep)}
}

func (s *sigCache) verified(digest [32]byte, sig []byte) bool {
	if s == nil {
		return false
	}
	v, ok := s.c.Get(hex.EncodeToString(digest[:]))
	if !ok {
		return false
	}
	return bytes.Equal(v.([]byte), sig)
}

func (s *sigCache) put(digest [32]byte, sig []byte) {
	if s == nil || len(sig) == 0 {
		return
	}
	s.c.SetDefault(hex.EncodeToString(digest[:]), append([]byte(nil), sig...))
}
