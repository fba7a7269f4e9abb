package distributed

import (
	"sort"

	"github.com/IvanBrykalov/tiercache/internal/util"
)

// ring is an immutable consistent-hash ring. Each member owns VirtualNodes
// points; a key belongs to the first point at or after hash(key), wrapping
// around at the end. Membership changes build a new ring.
type ring struct {
	points  []point
	members int
}

type point struct {
	hash uint64
	node string
}

func newRing(nodes []string, vnodes int) *ring {
	r := &ring{points: make([]point, 0, len(nodes)*vnodes), members: len(nodes)}
	for _, n := range nodes {
		for i := 0; i < vnodes; i++ {
			r.points = append(r.points, point{hash: util.VNodeHash(n, i), node: n})
		}
	}
	sort.Slice(r.points, func(i, j int) bool {
		if r.points[i].hash == r.points[j].hash {
			return r.points[i].node < r.points[j].node
		}
		return r.points[i].hash < r.points[j].hash
	})
	return r
}

// search returns the index of the successor point of key.
func (r *ring) search(key string) int {
	h := util.KeyHash(key)
	idx := sort.Search(len(r.points), func(i int) bool {
		return r.points[i].hash >= h
	})
	if idx >= len(r.points) {
		idx = 0 // wrap around
	}
	return idx
}

// owner returns the member owning key, or "" on an empty ring.
func (r *ring) owner(key string) string {
	if len(r.points) == 0 {
		return ""
	}
	return r.points[r.search(key)].node
}

// successors walks the ring clockwise from key and returns up to n distinct
// members, skipping exclude.
func (r *ring) successors(key string, n int, exclude string) []string {
	if len(r.points) == 0 || n <= 0 {
		return nil
	}
	out := make([]string, 0, min(n, r.members))
	seen := make(map[string]struct{}, r.members)
	start := r.search(key)
	for i := 0; i < len(r.points) && len(out) < n && len(seen) < r.members; i++ {
		node := r.points[(start+i)%len(r.points)].node
		if _, dup := seen[node]; dup {
			continue
		}
		seen[node] = struct{}{}
		if node != exclude {
			out = append(out, node)
		}
	}
	return out
}
