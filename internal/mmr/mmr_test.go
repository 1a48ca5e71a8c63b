package mmr

import (
	"math"
	"testing"
)

func TestSelectCountFromRatio(t *testing.T) {
	vectors := [][]float32{
		{1, 0}, {0.9, 0.1}, {0.8, 0.2}, {0, 1}, {0.1, 0.9},
		{0.5, 0.5}, {0.4, 0.6}, {0.7, 0.3}, {0.2, 0.8}, {0.6, 0.4},
	}
	got := Select(vectors, 0, 0.3, 0.6)
	if len(got) != 3 { // floor(10*0.3)
		t.Fatalf("selected = %d, want 3", len(got))
	}
	seen := map[int]bool{}
	for _, idx := range got {
		if seen[idx] {
			t.Fatalf("duplicate index %d in %v", idx, got)
		}
		seen[idx] = true
	}
}

func TestSelectExplicitCountWins(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}, {0.5, 0.5}}
	if got := Select(vectors, 2, 0.9, 0.6); len(got) != 2 {
		t.Fatalf("selected = %d, want 2", len(got))
	}
}

func TestSelectFirstIsCentroidArgmax(t *testing.T) {
	vectors := [][]float32{
		{1, 0},
		{0.7, 0.7}, // closest to the centroid direction
		{0, 1},
	}
	centroid := Centroid(vectors)
	best := 0
	for i := range vectors {
		if Cosine(vectors[i], centroid) > Cosine(vectors[best], centroid) {
			best = i
		}
	}
	got := Select(vectors, 2, 0, 0.6)
	if got[0] != best {
		t.Fatalf("first pick = %d, want argmax %d", got[0], best)
	}
}

func TestSelectRewardsDiversity(t *testing.T) {
	// Three near-identical vectors plus one orthogonal outlier: with a low
	// lambda the second pick must be the outlier, not another duplicate.
	vectors := [][]float32{
		{1, 0}, {0.99, 0.01}, {0.98, 0.02},
		{0, 1},
	}
	got := Select(vectors, 2, 0, 0.3)
	if got[1] != 3 {
		t.Fatalf("second pick = %d, want the diverse outlier 3 (selection %v)", got[1], got)
	}
}

func TestSelectDegenerateCases(t *testing.T) {
	if got := Select(nil, 0, 0.3, 0.6); got != nil {
		t.Errorf("empty input selected %v", got)
	}
	if got := Select([][]float32{{1, 2, 3}}, 0, 0.1, 0.6); len(got) != 1 || got[0] != 0 {
		t.Errorf("single block selection = %v, want [0]", got)
	}
	// Ratio rounding down to zero still selects one.
	vecs := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	if got := Select(vecs, 0, 0.1, 0.6); len(got) != 1 {
		t.Errorf("min selection = %v, want 1 element", got)
	}
	// Explicit count above n is clamped.
	if got := Select(vecs, 10, 0, 0.6); len(got) != 3 {
		t.Errorf("clamped selection = %d, want 3", len(got))
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors cosine = %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal cosine = %f", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero vector cosine = %f", got)
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid([][]float32{{2, 0}, {0, 2}})
	if c[0] != 1 || c[1] != 1 {
		t.Errorf("centroid = %v", c)
	}
}

func TestAutoPreset(t *testing.T) {
	if AutoPreset(500) != PresetAudit {
		t.Error("short note should use audit")
	}
	if AutoPreset(5000) != PresetStandard {
		t.Error("medium note should use standard")
	}
	if AutoPreset(20000) != PresetQuick {
		t.Error("long note should use quick")
	}
}
