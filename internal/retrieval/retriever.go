package retrieval

import (
	"fmt"

	"github.com/zulandar/helpline/internal/knowledge"
)

// Match is a retrieved knowledge record.
type Match struct {
	Index    int
	Question string
	Response string
	Intent   string
	Category string
}

// Retriever answers queries from a knowledge base through a TF-IDF index
// built over its utterances.
type Retriever struct {
	kb    *knowledge.Base
	index *Index
}

// NewRetriever indexes every utterance in kb.
func NewRetriever(kb *knowledge.Base) (*Retriever, error) {
	if kb == nil {
		return nil, fmt.Errorf("retrieval: knowledge base is required")
	}
	pairs := kb.Pairs()
	questions := make([]string, len(pairs))
	for i, p := range pairs {
		questions[i] = p.Utterance
	}
	return &Retriever{kb: kb, index: NewIndex(questions)}, nil
}

// Index exposes the underlying index.
func (r *Retriever) Index() *Index {
	return r.index
}

// Retrieve returns the answer paired with the most similar known question.
// ok is true only when the score is at least threshold. The score is
// returned either way for diagnostics.
func (r *Retriever) Retrieve(text string, threshold float64) (Match, float64, bool) {
	hit, found := r.index.Search(text)
	if !found {
		return Match{Index: -1}, 0, false
	}
	if hit.Score < threshold {
		return Match{Index: -1}, hit.Score, false
	}
	rec := r.kb.At(hit.Index)
	return Match{
		Index:    hit.Index,
		Question: rec.Utterance,
		Response: rec.Response,
		Intent:   rec.Intent,
		Category: rec.Category,
	}, hit.Score, true
}
