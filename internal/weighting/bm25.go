// Package weighting computes BM25 sparse term-weight vectors for corpus
// chunks. Only the document-side term-frequency component lives here; inverse
// document frequency is applied by the index at query time.
package weighting

import (
	"hash/fnv"
	"sort"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/vectorindex"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Sparse returns the BM25-weighted sparse vector for one chunk. Terms are
// mapped to stable uint32 indices by FNV-1a; entries are sorted by index so
// equal inputs always produce identical vectors.
func Sparse(freqs map[string]int, termLength int, avgDocLength float64) vectorindex.SparseVector {
	if avgDocLength <= 0 {
		avgDocLength = 1
	}

	type entry struct {
		index uint32
		value float64
	}
	entries := make([]entry, 0, len(freqs))
	lengthRatio := float64(termLength) / avgDocLength
	for term, freq := range freqs {
		if freq <= 0 {
			continue
		}
		tf := float64(freq)
		weight := (tf * (k1 + 1)) / (tf + k1*(1-b+b*lengthRatio))
		entries = append(entries, entry{index: termIndex(term), value: weight})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	vec := vectorindex.SparseVector{
		Indices: make([]uint32, 0, len(entries)),
		Values:  make([]float64, 0, len(entries)),
	}
	for _, e := range entries {
		// Hash collisions between distinct terms keep the larger weight.
		if n := len(vec.Indices); n > 0 && vec.Indices[n-1] == e.index {
			if e.value > vec.Values[n-1] {
				vec.Values[n-1] = e.value
			}
			continue
		}
		vec.Indices = append(vec.Indices, e.index)
		vec.Values = append(vec.Values, e.value)
	}
	return vec
}

func termIndex(term string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(term))
	return h.Sum32()
}
