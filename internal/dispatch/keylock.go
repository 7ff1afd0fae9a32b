package dispatch

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// lockTable serializes work per (deviceID, metric) key with a fixed
// number of mutexes. Two distinct keys may share a shard; that only
// costs parallelism, never correctness.
type lockTable struct {
	locks [lockShards]sync.Mutex
}

func (t *lockTable) get(key string) *sync.Mutex {
	f := fnv.New32a()
	f.Write([]byte(key))
	return &t.locks[f.Sum32()%lockShards]
}
