package sync

import (
	"encoding/binary"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring is a consistent hash ring over shard indexes [0, shards).
type ring struct {
	hashRing *treemap.Map

	// first is the shard of the smallest hash, used when a key hashes past
	// the last entry and wraps around.
	first int
}

// newRing places each shard on the ring replicas times.
func newRing(shards, replicas uint) *ring {
	hashRing := treemap.NewWith(utils.Int64Comparator)
	for shard := 0; shard < int(shards); shard++ {
		name, _ := murmur3.Sum128([]byte(fmt.Sprintf("stripe%d", shard)))

		var buf [12]byte
		binary.LittleEndian.PutUint64(buf[:8], name)
		for replica := 0; replica < int(replicas); replica++ {
			binary.LittleEndian.PutUint32(buf[8:], uint32(replica))
			hash, _ := murmur3.Sum128(buf[:])
			hashRing.Put(int64(hash), shard)
		}
	}

	r := &ring{hashRing: hashRing}
	if _, first := hashRing.Min(); first != nil {
		r.first = first.(int)
	}
	return r
}

// shard returns the shard index key consistently maps to.
func (r *ring) shard(key []byte) int {
	raw, _ := murmur3.Sum128(key)
	if _, shard := r.hashRing.Ceiling(int64(raw)); shard != nil {
		return shard.(int)
	}
	return r.first
}
