package poolmeta

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v2"

	"github.com/wanzew/snapmirror/pkg/merrors"
	"github.com/wanzew/snapmirror/pkg/types"
)

// RemotePoolMeta is the replication metadata of a remote pool.
type RemotePoolMeta struct {
	MirrorUUID     string
	MirrorPeerUUID string
}

// Cache holds per-pool replication metadata discovered by the pool watcher.
// Reads vastly outnumber writes, hence the read-biased lock.
type Cache struct {
	mu     *xsync.RBMutex
	remote map[types.PoolID]RemotePoolMeta
}

func NewCache() *Cache {
	return &Cache{
		mu:     xsync.NewRBMutex(),
		remote: make(map[types.PoolID]RemotePoolMeta),
	}
}

func (c *Cache) GetRemotePoolMeta(poolID types.PoolID) (RemotePoolMeta, error) {
	rt := c.mu.RLock()
	defer c.mu.RUnlock(rt)
	meta, ok := c.remote[poolID]
	if !ok {
		return RemotePoolMeta{}, fmt.Errorf("poolmeta: pool %s: %w", poolID, merrors.ErrNotFound)
	}
	return meta, nil
}

func (c *Cache) SetRemotePoolMeta(poolID types.PoolID, meta RemotePoolMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote[poolID] = meta
}

func (c *Cache) RemoveRemotePoolMeta(poolID types.PoolID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.remote, poolID)
}
