package sync

import (
	"encoding/binary"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring consistently hashes keys onto one of a fixed number of slots. Each slot
// is placed on the ring at several points to even out the distribution.
type ring struct {
	points *treemap.Map

	// first is the slot owning the lowest point, where hashes past the last
	// point wrap around to
	first int
}

func newRing(slots, pointsPerSlot uint) *ring {
	points := treemap.NewWith(utils.Int64Comparator)

	for slot := uint(0); slot < slots; slot++ {
		var seed [8]byte
		binary.LittleEndian.PutUint64(seed[:], uint64(slot))
		slotHash, _ := murmur3.Sum128(seed[:])

		for i := uint(0); i < pointsPerSlot; i++ {
			var point [12]byte
			binary.LittleEndian.PutUint64(point[:8], slotHash)
			binary.LittleEndian.PutUint32(point[8:], uint32(i))
			points.Put(hash(point[:]), int(slot))
		}
	}

	r := &ring{
		points: points,
	}
	if _, first := points.Min(); first != nil {
		r.first = first.(int)
	}
	return r
}

// slot returns the slot owning key
func (r *ring) slot(key []byte) int {
	if _, slot := r.points.Ceiling(hash(key)); slot != nil {
		return slot.(int)
	}
	return r.first
}

func hash(data []byte) int64 {
	h, _ := murmur3.Sum128(data)
	return int64(h)
}
