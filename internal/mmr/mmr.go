// Package mmr selects a relevant yet diverse subset of embedded blocks using
// Maximal Marginal Relevance against the centroid of all block vectors.
package mmr

import "math"

// Preset fixes a (ratio, lambda) pair for a named selection profile.
type Preset struct {
	Name   string
	Ratio  float64 // fraction of blocks to keep
	Lambda float64 // relevance weight; 1-lambda weights diversity
}

// Named presets. Auto picks one of these from total word count.
var (
	PresetQuick    = Preset{Name: "quick", Ratio: 0.15, Lambda: 0.75}
	PresetStandard = Preset{Name: "standard", Ratio: 0.3, Lambda: 0.6}
	PresetAudit    = Preset{Name: "audit", Ratio: 0.5, Lambda: 0.45}
)

// AutoPreset picks a preset from the total word count of the candidate
// blocks: short notes can afford to keep more, long ones get skimmed.
func AutoPreset(totalWords int) Preset {
	switch {
	case totalWords < 2000:
		return PresetAudit
	case totalWords < 8000:
		return PresetStandard
	default:
		return PresetQuick
	}
}

// Select returns the indices of the chosen blocks, in selection order. The
// first pick is the block most similar to the centroid; each subsequent pick
// maximizes lambda*relevance - (1-lambda)*maxSimilarityToSelected. count <= 0
// means "derive from ratio": max(1, floor(n*ratio)).
func Select(vectors [][]float32, count int, ratio, lambda float64) []int {
	n := len(vectors)
	if n == 0 {
		return nil
	}
	k := count
	if k <= 0 {
		k = int(math.Floor(float64(n) * ratio))
		if k < 1 {
			k = 1
		}
	}
	if k > n {
		k = n
	}

	centroid := Centroid(vectors)
	relevance := make([]float64, n)
	for i, v := range vectors {
		relevance[i] = Cosine(v, centroid)
	}

	selected := make([]int, 0, k)
	used := make([]bool, n)

	// Seed with the argmax of centroid similarity.
	best := 0
	for i := 1; i < n; i++ {
		if relevance[i] > relevance[best] {
			best = i
		}
	}
	selected = append(selected, best)
	used[best] = true

	for len(selected) < k {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			maxSim := math.Inf(-1)
			for _, s := range selected {
				if sim := Cosine(vectors[i], vectors[s]); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		selected = append(selected, bestIdx)
		used[bestIdx] = true
	}
	return selected
}

// Centroid returns the mean vector. Vectors of mismatched length contribute
// only their common prefix; in practice one model yields one dimension.
func Centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	out := make([]float32, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			out[i] += v[i]
		}
	}
	inv := 1 / float32(len(vectors))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
