// Package retrieval finds the known question closest to a user query using
// TF-IDF weighted unigram and bigram vectors and cosine similarity.
package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/zulandar/helpline/internal/textnorm"
)

// DefaultThreshold is the minimum cosine similarity accepted as a match.
const DefaultThreshold = 0.22

// tieEpsilon absorbs float summation noise so equal scores keep the lowest
// index.
const tieEpsilon = 1e-12

type weight struct {
	id int
	w  float64
}

// vector is a sparse, L2-normalized term vector sorted by term id.
type vector []weight

// Index is a read-only TF-IDF index over a fixed question corpus. It is safe
// for concurrent use once built.
type Index struct {
	vocab map[string]int
	idf   []float64
	docs  []vector
}

// Hit is the best-scoring question for a query.
type Hit struct {
	Index int
	Score float64
}

// NewIndex builds an index over questions. The vocabulary, document
// frequencies and IDF weights are fixed here and never change.
func NewIndex(questions []string) *Index {
	analyzed := make([][]string, len(questions))
	df := make(map[string]int)
	for i, q := range questions {
		terms := analyze(q)
		analyzed[i] = terms
		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	names := make([]string, 0, len(df))
	for t := range df {
		names = append(names, t)
	}
	sort.Strings(names)

	n := float64(len(questions))
	ix := &Index{
		vocab: make(map[string]int, len(names)),
		idf:   make([]float64, len(names)),
		docs:  make([]vector, len(questions)),
	}
	for id, t := range names {
		ix.vocab[t] = id
		ix.idf[id] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
	for i, terms := range analyzed {
		ix.docs[i] = ix.weigh(terms)
	}
	return ix
}

// Len returns the number of indexed questions.
func (ix *Index) Len() int {
	return len(ix.docs)
}

// VocabularySize returns the number of distinct terms.
func (ix *Index) VocabularySize() int {
	return len(ix.vocab)
}

// Search returns the best-scoring question for text. ok is false when the
// corpus is empty or text shares no terms with it.
func (ix *Index) Search(text string) (Hit, bool) {
	if ix == nil || len(ix.docs) == 0 {
		return Hit{Index: -1}, false
	}
	q := ix.weigh(analyze(text))
	if len(q) == 0 {
		return Hit{Index: -1}, false
	}
	best := Hit{Index: -1}
	for i, d := range ix.docs {
		s := dot(q, d)
		if best.Index < 0 || s > best.Score+tieEpsilon {
			best = Hit{Index: i, Score: s}
		}
	}
	return best, true
}

// Similarity returns the cosine similarity between text and question i.
func (ix *Index) Similarity(text string, i int) float64 {
	if i < 0 || i >= len(ix.docs) {
		return 0
	}
	return dot(ix.weigh(analyze(text)), ix.docs[i])
}

// weigh turns terms into a normalized TF-IDF vector. Out-of-vocabulary terms
// are ignored.
func (ix *Index) weigh(terms []string) vector {
	counts := make(map[int]int, len(terms))
	for _, t := range terms {
		if id, ok := ix.vocab[t]; ok {
			counts[id]++
		}
	}
	v := make(vector, 0, len(counts))
	for id, c := range counts {
		v = append(v, weight{id: id, w: float64(c) * ix.idf[id]})
	}
	sort.Slice(v, func(a, b int) bool { return v[a].id < v[b].id })

	var sum float64
	for _, x := range v {
		sum += x.w * x.w
	}
	if sum == 0 {
		return nil
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i].w /= norm
	}
	return v
}

// dot is the merge-join inner product of two sorted vectors.
func dot(a, b vector) float64 {
	var s float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].id == b[j].id:
			s += a[i].w * b[j].w
			i++
			j++
		case a[i].id < b[j].id:
			i++
		default:
			j++
		}
	}
	return s
}

// analyze tokenizes text, drops stop words and emits unigrams followed by
// bigrams of the remaining tokens.
func analyze(text string) []string {
	var tokens []string
	for _, t := range textnorm.Tokens(text) {
		if !IsStopWord(t) {
			tokens = append(tokens, t)
		}
	}
	terms := make([]string, 0, 2*len(tokens))
	terms = append(terms, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		terms = append(terms, strings.Join(tokens[i:i+2], " "))
	}
	return terms
}
