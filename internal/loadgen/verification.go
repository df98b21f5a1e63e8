package loadgen

import (
	"fmt"
	"sync"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/internal/domain/resonance"
)

const maxViolations = 100

// violations collects consistency failures from concurrent checks.
type violations struct {
	mu    sync.Mutex
	items []string
}

func (v *violations) add(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.items) < maxViolations {
		v.items = append(v.items, fmt.Sprintf(format, args...))
	}
}

func (v *violations) list() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.items...)
}

// checkComparison verifies the invariants every recorded comparison holds:
// matches are ordered strongest first, lie above the retain threshold and
// carry the classification their strength implies.
func checkComparison(c *model.Comparison, v *violations) {
	if c.ID == "" {
		v.add("comparison without id for %q", c.InputText)
		return
	}
	for i := range c.Matches {
		m := &c.Matches[i]
		if m.Strength <= model.RetainThreshold || m.Strength > 1 {
			v.add("%s: match %s strength %.4f out of range", c.ID, m.FingerprintID, m.Strength)
		}
		if want := resonance.Classify(m.Strength); m.Classification != want {
			v.add("%s: match %s classified %s, want %s", c.ID, m.FingerprintID, m.Classification, want)
		}
		if i > 0 && m.Strength > c.Matches[i-1].Strength {
			v.add("%s: matches not ordered by strength at %d", c.ID, i)
		}
	}
}

// sameComparison reports whether a read-back record equals the recorded one.
func sameComparison(a, b *model.Comparison) bool {
	if a.ID != b.ID || a.InputText != b.InputText || a.InputType != b.InputType || a.SourceLabel != b.SourceLabel {
		return false
	}
	if !a.Timestamp.Equal(b.Timestamp) || len(a.Matches) != len(b.Matches) {
		return false
	}
	for i := range a.Matches {
		if a.Matches[i].FingerprintID != b.Matches[i].FingerprintID || a.Matches[i].Strength != b.Matches[i].Strength {
			return false
		}
	}
	return true
}
