// ABOUTME: Layered binary hash tree stored as an arena of levels
// ABOUTME: Builds roots and sibling paths over leaves sorted by key

package sigmap

import (
	"crypto/sha256"
)

// Hash is a 32-byte SHA-256 digest.
type Hash = [sha256.Size]byte

const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

// EmptyRoot is the root of a map with no entries.
var EmptyRoot = Hash(sha256.Sum256(nil))

func leafHash(key, value Hash) Hash {
	var buf [1 + 2*sha256.Size]byte
	buf[0] = leafPrefix
	copy(buf[1:], key[:])
	copy(buf[1+sha256.Size:], value[:])
	return sha256.Sum256(buf[:])
}

func nodeHash(left, right Hash) Hash {
	var buf [1 + 2*sha256.Size]byte
	buf[0] = nodePrefix
	copy(buf[1:], left[:])
	copy(buf[1+sha256.Size:], right[:])
	return sha256.Sum256(buf[:])
}

// tree is levels[0] = leaves, levels[len-1] = root. A trailing odd node is
// promoted unchanged to the next level.
type tree struct {
	levels [][]Hash
}

func buildTree(leaves []Hash) tree {
	if len(leaves) == 0 {
		return tree{}
	}
	levels := [][]Hash{leaves}
	for cur := leaves; len(cur) > 1; {
		next := make([]Hash, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, nodeHash(cur[i], cur[i+1]))
			} else {
				next = append(next, cur[i])
			}
		}
		levels = append(levels, next)
		cur = next
	}
	return tree{levels: levels}
}

func (t tree) root() Hash {
	if len(t.levels) == 0 {
		return EmptyRoot
	}
	return t.levels[len(t.levels)-1][0]
}

// path returns the siblings needed to recompute the root from leaf index.
func (t tree) path(index int) []Hash {
	var siblings []Hash
	for _, level := range t.levels[:max(len(t.levels)-1, 0)] {
		sib := index ^ 1
		if sib < len(level) {
			siblings = append(siblings, level[sib])
		}
		index /= 2
	}
	return siblings
}

// rootFromPath recomputes the root of a tree with size leaves from one leaf.
func rootFromPath(leaf Hash, index, size int, siblings []Hash) (Hash, bool) {
	if index < 0 || index >= size {
		return Hash{}, false
	}
	h := leaf
	for width := size; width > 1; width = (width + 1) / 2 {
		switch {
		case index%2 == 1:
			if len(siblings) == 0 {
				return Hash{}, false
			}
			h = nodeHash(siblings[0], h)
			siblings = siblings[1:]
		case index+1 < width:
			if len(siblings) == 0 {
				return Hash{}, false
			}
			h = nodeHash(h, siblings[0])
			siblings = siblings[1:]
		}
		index /= 2
	}
	return h, len(siblings) == 0
}
