package weighting

import (
	"math"
	"reflect"
	"testing"
)

func TestSparseKnownValue(t *testing.T) {
	// tf=2, docLen=avgdl ⇒ lengthRatio 1 ⇒ weight = 2*(k1+1)/(2+k1).
	vec := Sparse(map[string]int{"alpha": 2}, 100, 100)
	if len(vec.Indices) != 1 || len(vec.Values) != 1 {
		t.Fatalf("expected one entry, got %+v", vec)
	}
	want := 2 * (1.2 + 1) / (2 + 1.2)
	if math.Abs(vec.Values[0]-want) > 1e-9 {
		t.Errorf("weight = %v, want %v", vec.Values[0], want)
	}
}

func TestSparseShortChunksWeighHigher(t *testing.T) {
	short := Sparse(map[string]int{"term": 1}, 10, 100)
	long := Sparse(map[string]int{"term": 1}, 500, 100)
	if short.Values[0] <= long.Values[0] {
		t.Errorf("short chunk weight %v should exceed long chunk weight %v",
			short.Values[0], long.Values[0])
	}
}

func TestSparseDeterministic(t *testing.T) {
	freqs := map[string]int{"a": 3, "b": 1, "c": 7, "d": 2}
	first := Sparse(freqs, 40, 55)
	second := Sparse(freqs, 40, 55)
	if !reflect.DeepEqual(first, second) {
		t.Error("equal inputs produced different vectors")
	}
	for i := 1; i < len(first.Indices); i++ {
		if first.Indices[i-1] >= first.Indices[i] {
			t.Fatalf("indices not strictly increasing: %v", first.Indices)
		}
	}
}

func TestSparseZeroAvgDocLength(t *testing.T) {
	vec := Sparse(map[string]int{"a": 1}, 10, 0)
	if len(vec.Values) != 1 || vec.Values[0] <= 0 {
		t.Errorf("expected a positive weight with neutral avgdl, got %+v", vec)
	}
}

func TestSparseSkipsNonPositiveFrequencies(t *testing.T) {
	vec := Sparse(map[string]int{"a": 0, "b": -2, "c": 1}, 10, 10)
	if len(vec.Indices) != 1 {
		t.Errorf("expected only the positive-frequency term, got %+v", vec)
	}
}
