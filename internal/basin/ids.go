package basin

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatID builds a basin id "<depth>#<letters>" from a zero-based sequence
// number within the depth.
func FormatID(depth, seq int) string {
	return strconv.Itoa(depth) + "#" + letters(seq)
}

// ParseID splits a basin id into depth and sequence number.
func ParseID(id string) (depth, seq int, err error) {
	ds, ls, ok := strings.Cut(id, "#")
	if !ok {
		return 0, 0, fmt.Errorf("basin id %q: missing '#'", id)
	}
	depth, err = strconv.Atoi(ds)
	if err != nil || depth < 0 {
		return 0, 0, fmt.Errorf("basin id %q: bad depth", id)
	}
	seq, err = parseLetters(ls)
	if err != nil {
		return 0, 0, fmt.Errorf("basin id %q: %w", id, err)
	}
	return depth, seq, nil
}

// letters encodes n in bijective base-26: 0→a, 25→z, 26→aa.
func letters(n int) string {
	var buf []byte
	for n++; n > 0; n = (n - 1) / 26 {
		buf = append(buf, byte('a'+(n-1)%26))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

func parseLetters(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty letter sequence")
	}
	n := 0
	for _, ch := range s {
		if ch < 'a' || ch > 'z' {
			return 0, fmt.Errorf("invalid letter %q", ch)
		}
		n = n*26 + int(ch-'a') + 1
	}
	return n - 1, nil
}

// idLess orders ids by depth, then by sequence. Unparseable ids sort last
// by plain string comparison.
func idLess(a, b string) bool {
	da, sa, errA := ParseID(a)
	db, sb, errB := ParseID(b)
	switch {
	case errA != nil && errB != nil:
		return a < b
	case errA != nil:
		return false
	case errB != nil:
		return true
	case da != db:
		return da < db
	default:
		return sa < sb
	}
}

// idAllocator hands out per-depth letter sequences.
type idAllocator struct {
	next map[int]int
}

func newIDAllocator() *idAllocator {
	return &idAllocator{next: make(map[int]int)}
}

// Next returns the next unused id at depth.
func (a *idAllocator) Next(depth int) string {
	seq := a.next[depth]
	a.next[depth] = seq + 1
	return FormatID(depth, seq)
}

// Observe records an existing id so later allocations never collide with it.
func (a *idAllocator) Observe(id string) {
	depth, seq, err := ParseID(id)
	if err != nil {
		return
	}
	if seq >= a.next[depth] {
		a.next[depth] = seq + 1
	}
}

// Reset forgets every allocation.
func (a *idAllocator) Reset() {
	clear(a.next)
}
