package engine

import (
	"github.com/zulandar/helpline/internal/dialogue"
	"github.com/zulandar/helpline/internal/intent"
	"github.com/zulandar/helpline/internal/retrieval"
)

// keywordResolver answers through the keyword intent matcher.
type keywordResolver struct {
	m *intent.Matcher
}

func (r keywordResolver) Resolve(text string) dialogue.Resolution {
	res := r.m.Match(text)
	return dialogue.Resolution{
		Response: res.Response,
		Intent:   res.Intent,
		Category: res.Category,
		Score:    float64(res.Score),
		Matched:  res.Matched(),
	}
}

// similarityResolver answers through the TF-IDF retriever.
type similarityResolver struct {
	r         *retrieval.Retriever
	threshold float64
}

func (r similarityResolver) Resolve(text string) dialogue.Resolution {
	m, score, ok := r.r.Retrieve(text, r.threshold)
	if !ok {
		return dialogue.Resolution{Score: score}
	}
	return dialogue.Resolution{
		Response: m.Response,
		Intent:   m.Intent,
		Category: m.Category,
		Score:    score,
		Matched:  true,
	}
}
