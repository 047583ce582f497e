package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/joseph-ayodele/ape/constants"
)

// resultCache memoizes results by content hash so re-uploads of the same
// document skip the backend. Entries are cloned on the way in and out. A nil
// cache is a no-op.
type resultCache struct {
	c *ttlcache.Cache[string, Result]
}

func newResultCache(ttl time.Duration) *resultCache {
	c := ttlcache.New[string, Result](
		ttlcache.WithTTL[string, Result](ttl),
		ttlcache.WithCapacity[string, Result](512),
	)
	go c.Start()
	return &resultCache{c: c}
}

func cacheKey(data []byte, format constants.Format) string {
	sum := sha256.Sum256(data)
	return string(format) + ":" + hex.EncodeToString(sum[:])
}

func (rc *resultCache) get(data []byte, format constants.Format) (Result, bool) {
	if rc == nil {
		return Result{}, false
	}
	item := rc.c.Get(cacheKey(data, format))
	if item == nil {
		return Result{}, false
	}
	return item.Value().Clone(), true
}

func (rc *resultCache) put(data []byte, format constants.Format, r Result) {
	if rc == nil {
		return
	}
	rc.c.Set(cacheKey(data, format), r.Clone(), ttlcache.DefaultTTL)
}

func (rc *resultCache) stop() {
	if rc == nil {
		return
	}
	rc.c.Stop()
}
