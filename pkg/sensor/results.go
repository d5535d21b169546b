package sensor

import "fmt"

// Results holds one value slot per declared variable for the current
// measurement cycle. Good values added to a slot are averaged; a sentinel
// never replaces a good value.
type Results struct {
	sums   []float64
	counts []int
}

func NewResults(slots int) *Results {
	r := &Results{sums: make([]float64, slots), counts: make([]int, slots)}
	return r
}

func (r *Results) Len() int { return len(r.sums) }

// Add records value into slot. A value equal to Sentinel is dropped, so a
// measured -9999 cannot be told apart from a missing one; sensors that can
// produce it must treat it as invalid.
func (r *Results) Add(slot int, value float64) error {
	if slot < 0 || slot >= len(r.sums) {
		return fmt.Errorf("slot %d out of range [0,%d)", slot, len(r.sums))
	}
	if value == Sentinel {
		return nil
	}
	r.sums[slot] += value
	r.counts[slot]++
	return nil
}

// Value returns the averaged value of slot, or Sentinel when no good value
// was recorded.
func (r *Results) Value(slot int) float64 {
	if slot < 0 || slot >= len(r.sums) || r.counts[slot] == 0 {
		return Sentinel
	}
	return r.sums[slot] / float64(r.counts[slot])
}

// Count returns the number of good values recorded in slot.
func (r *Results) Count(slot int) int {
	if slot < 0 || slot >= len(r.counts) {
		return 0
	}
	return r.counts[slot]
}

func (r *Results) Reset() {
	for i := range r.sums {
		r.sums[i] = 0
		r.counts[i] = 0
	}
}
