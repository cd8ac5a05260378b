// internal/reader/plan.go
package reader

import "sort"

// Run is a maximal span of consecutive register addresses.
type Run struct {
	Start uint16
	Count uint16
}

// End returns the last address in the run (inclusive).
func (r Run) End() uint16 { return r.Start + r.Count - 1 }

// PlanRuns sorts and deduplicates wanted, then coalesces it into
// maximal runs. A run ends where next != prev+1.
func PlanRuns(wanted []uint16) []Run {
	if len(wanted) == 0 {
		return nil
	}

	addrs := append([]uint16(nil), wanted...)
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var runs []Run
	cur := Run{Start: addrs[0], Count: 1}
	prev := addrs[0]

	for _, a := range addrs[1:] {
		switch {
		case a == prev:
			continue
		case uint32(a) == uint32(prev)+1:
			cur.Count++
		default:
			runs = append(runs, cur)
			cur = Run{Start: a, Count: 1}
		}
		prev = a
	}
	return append(runs, cur)
}

// Chunks splits a run into pieces of at most limit registers, in order.
func Chunks(r Run, limit uint16) []Run {
	if limit == 0 {
		limit = DefaultChunkLimit
	}

	out := make([]Run, 0, (int(r.Count)+int(limit)-1)/int(limit))
	for off := 0; off < int(r.Count); off += int(limit) {
		n := int(limit)
		if rest := int(r.Count) - off; rest < n {
			n = rest
		}
		out = append(out, Run{Start: r.Start + uint16(off), Count: uint16(n)})
	}
	return out
}

// Plan is PlanRuns followed by Chunks over every run.
func Plan(wanted []uint16, limit uint16) []Run {
	var out []Run
	for _, r := range PlanRuns(wanted) {
		out = append(out, Chunks(r, limit)...)
	}
	return out
}
