// Package knowledge loads the canned support catalog the engine answers from.
package knowledge

import "errors"

// ErrUnavailable is returned when the knowledge base cannot be loaded. The
// engine must not answer queries without one.
var ErrUnavailable = errors.New("knowledge base unavailable")

// Column names in the tabular source.
const (
	ColIntent      = "intent"
	ColUtterance   = "user_message"
	ColResponse    = "bot_response"
	ColCategory    = "category"
	FallbackIntent = "fallback"
)

// Variant selects which matcher the knowledge base feeds, and therefore
// which columns are required.
type Variant string

const (
	VariantKeyword    Variant = "keyword"
	VariantSimilarity Variant = "similarity"
)

// RequiredColumns returns the columns a source must carry for the variant.
func (v Variant) RequiredColumns() []string {
	if v == VariantSimilarity {
		return []string{ColUtterance, ColResponse}
	}
	return []string{ColIntent, ColUtterance, ColResponse, ColCategory}
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	return v == VariantKeyword || v == VariantSimilarity
}

// Record is a single canned question/answer pair.
type Record struct {
	Intent    string `json:"intent"`
	Utterance string `json:"user_message"`
	Response  string `json:"bot_response"`
	Category  string `json:"category"`
}

// Pair is a retrievable (utterance, response) pair.
type Pair struct {
	Utterance string
	Response  string
}

// Base is an ordered, read-only collection of records. It is safe to share
// across goroutines.
type Base struct {
	records []Record
}

// NewBase copies records into a Base.
func NewBase(records []Record) *Base {
	cp := make([]Record, len(records))
	copy(cp, records)
	return &Base{records: cp}
}

// Len returns the number of records.
func (b *Base) Len() int {
	if b == nil {
		return 0
	}
	return len(b.records)
}

// Records returns a copy of all records in load order.
func (b *Base) Records() []Record {
	if b == nil {
		return nil
	}
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

// Pairs returns one (utterance, response) pair per record, in load order.
func (b *Base) Pairs() []Pair {
	if b == nil {
		return nil
	}
	out := make([]Pair, len(b.records))
	for i, r := range b.records {
		out[i] = Pair{Utterance: r.Utterance, Response: r.Response}
	}
	return out
}

// At returns the record at index i.
func (b *Base) At(i int) Record {
	return b.records[i]
}

// FirstByIntent returns the first record whose intent equals intent. The
// comparison is exact and case-sensitive.
func (b *Base) FirstByIntent(intent string) (Record, bool) {
	if b == nil {
		return Record{}, false
	}
	for _, r := range b.records {
		if r.Intent == intent {
			return r, true
		}
	}
	return Record{}, false
}
