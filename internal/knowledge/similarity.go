package knowledge

import "math"

// Similarity scores how close two pattern payloads are, in [0,1]. The score
// is computed over the keys present in both maps: numeric values contribute
// their normalized closeness, everything else contributes 1 for an exact
// match and 0 otherwise. Symmetric by construction. Returns 0 when either
// argument is nil or the maps share no keys.
func Similarity(a, b map[string]any) float64 {
	if a == nil || b == nil {
		return 0
	}

	var shared int
	var score float64
	for key, av := range a {
		bv, ok := b[key]
		if !ok {
			continue
		}
		shared++

		an, aNum := asFloat(av)
		bn, bNum := asFloat(bv)
		switch {
		case aNum && bNum:
			maxAbs := math.Max(math.Abs(an), math.Abs(bn))
			if maxAbs == 0 {
				// Both exactly zero: degenerate equal case.
				score += 1
			} else {
				// Clamped so opposite-signed values contribute 0, not a
				// negative that could drag the score below the range.
				score += math.Max(0, 1-math.Abs(an-bn)/maxAbs)
			}
		case av == bv:
			score += 1
		}
	}

	if shared == 0 {
		return 0
	}
	return score / float64(shared)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
