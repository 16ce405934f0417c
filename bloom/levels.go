// Package bloom turns classified chat messages and quiz results into
// per-student, per-topic Bloom's Taxonomy histograms.
package bloom

// Levels are the canonical Bloom's Taxonomy labels. Order is significant:
// it defines the hierarchy used for progression comparisons.
var Levels = []string{"Remember", "Understand", "Apply", "Analyze", "Evaluate", "Create"}

// Counter maps a Bloom level to a non-negative count.
type Counter map[string]int

// Summary maps a topic id to its six-level Counter.
type Summary map[string]Counter

// NewCounter returns a zero-filled six-level counter.
func NewCounter() Counter {
	c := make(Counter, len(Levels))
	for _, lvl := range Levels {
		c[lvl] = 0
	}
	return c
}

// NewSummary returns a summary with a zero counter per topic id.
func NewSummary(topicIDs []string) Summary {
	s := make(Summary, len(topicIDs))
	for _, id := range topicIDs {
		s[id] = NewCounter()
	}
	return s
}

// IsLevel reports whether lvl is one of the canonical labels (exact match).
func IsLevel(lvl string) bool {
	for _, l := range Levels {
		if l == lvl {
			return true
		}
	}
	return false
}

// Merge adds every non-zero count of src into dst, creating topic entries as
// needed. Increment-not-overwrite: this is the only way persisted summaries
// are mutated outside an explicit restore.
func Merge(dst, src Summary) {
	for topicID, counts := range src {
		if _, ok := dst[topicID]; !ok {
			dst[topicID] = NewCounter()
		}
		for lvl, count := range counts {
			if count > 0 {
				dst[topicID][lvl] += count
			}
		}
	}
}

// HighestLevel returns the highest canonical level with a non-zero count,
// or "" when the counter is empty or all-zero.
func HighestLevel(c Counter) string {
	for i := len(Levels) - 1; i >= 0; i-- {
		if c[Levels[i]] > 0 {
			return Levels[i]
		}
	}
	return ""
}

// Total sums all level counts of a counter.
func Total(c Counter) int {
	total := 0
	for _, count := range c {
		total += count
	}
	return total
}

// FromMap converts a persisted map into a Summary.
func FromMap(m map[string]map[string]int) Summary {
	s := make(Summary, len(m))
	for topicID, counts := range m {
		c := make(Counter, len(counts))
		for lvl, count := range counts {
			c[lvl] = count
		}
		s[topicID] = c
	}
	return s
}

// ToMap converts a Summary into the plain map persisted as JSONB.
func (s Summary) ToMap() map[string]map[string]int {
	m := make(map[string]map[string]int, len(s))
	for topicID, counts := range s {
		mc := make(map[string]int, len(counts))
		for lvl, count := range counts {
			mc[lvl] = count
		}
		m[topicID] = mc
	}
	return m
}
