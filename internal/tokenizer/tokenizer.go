// Package tokenizer splits raw file content into lexical token spans.
//
// It performs no I/O and never copies its input: spans point into the
// caller's buffer, which is typically a read-only memory-mapped view.
// Tokens are identified in the index only by their 64-bit xxhash; distinct
// tokens sharing a hash share a posting set.
package tokenizer

import (
	"bytes"
	"iter"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultMinLength drops one-byte runs, which are mostly noise.
	DefaultMinLength = 2

	// DefaultConnectors are the non-alphanumeric bytes kept inside tokens,
	// so snake_case and kebab-case identifiers stay whole.
	DefaultConnectors = "_-"

	// BinarySniffLen is how many leading bytes are checked for a null byte.
	BinarySniffLen = 8 * 1024
)

// Policy controls which byte runs become tokens.
type Policy struct {
	// MinLength is the shortest run (in bytes) kept as a token.
	MinLength int

	// Connectors lists extra ASCII bytes treated as token bytes, e.g. "_-".
	Connectors string
}

// DefaultPolicy returns the build and query policy used unless configured otherwise.
func DefaultPolicy() Policy {
	return Policy{MinLength: DefaultMinLength, Connectors: DefaultConnectors}
}

// Span locates one token in a buffer as the half-open range [Start, End).
type Span struct {
	Start int
	End   int
}

// Len returns the token length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Text returns the token bytes as a sub-slice of buf.
func (s Span) Text(buf []byte) []byte { return buf[s.Start:s.End:s.End] }

// Tokenizer applies a Policy. It is immutable and safe for concurrent use.
type Tokenizer struct {
	policy Policy
	table  [256]bool
}

// New creates a Tokenizer for the given policy. A MinLength below 1 is raised to 1.
func New(p Policy) *Tokenizer {
	if p.MinLength < 1 {
		p.MinLength = 1
	}
	t := &Tokenizer{policy: p}
	for c := '0'; c <= '9'; c++ {
		t.table[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		t.table[c] = true
		t.table[c-'a'+'A'] = true
	}
	for i := 0; i < len(p.Connectors); i++ {
		if c := p.Connectors[i]; c < 0x80 && c != 0 {
			t.table[c] = true
		}
	}
	return t
}

// Policy returns the policy the tokenizer was built with.
func (t *Tokenizer) Policy() Policy { return t.policy }

// IsTokenByte reports whether c may appear inside a token.
func (t *Tokenizer) IsTokenByte(c byte) bool { return t.table[c] }

// IsBinary reports whether buf contains a null byte in its first BinarySniffLen bytes.
func IsBinary(buf []byte) bool {
	n := len(buf)
	if n > BinarySniffLen {
		n = BinarySniffLen
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}

// Hash returns the 64-bit token hash used as posting key.
func Hash(token []byte) uint64 { return xxhash.Sum64(token) }

// HashString is Hash for string input.
func HashString(token string) uint64 { return xxhash.Sum64String(token) }

// Iterator walks the token spans of one buffer.
type Iterator struct {
	t   *Tokenizer
	buf []byte
	pos int
}

// Iter returns an Iterator over buf. Binary buffers produce no tokens.
func (t *Tokenizer) Iter(buf []byte) *Iterator {
	it := &Iterator{t: t, buf: buf}
	if IsBinary(buf) {
		it.pos = len(buf)
	}
	return it
}

// Next returns the next token span, or false when the buffer is exhausted.
func (it *Iterator) Next() (Span, bool) {
	buf, table, minLen := it.buf, &it.t.table, it.t.policy.MinLength
	for it.pos < len(buf) {
		for it.pos < len(buf) && !table[buf[it.pos]] {
			it.pos++
		}
		start := it.pos
		for it.pos < len(buf) && table[buf[it.pos]] {
			it.pos++
		}
		if it.pos-start >= minLen {
			return Span{Start: start, End: it.pos}, true
		}
	}
	return Span{}, false
}

// Tokens returns a lazy sequence of token spans in buf. Ranging over the
// result again restarts from the beginning.
func (t *Tokenizer) Tokens(buf []byte) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		it := t.Iter(buf)
		for {
			s, ok := it.Next()
			if !ok || !yield(s) {
				return
			}
		}
	}
}

// QueryTokens tokenizes a query string with the same rules used for content.
// Duplicates are removed, first occurrence order is kept.
func (t *Tokenizer) QueryTokens(query string) []string {
	buf := []byte(query)
	seen := make(map[string]struct{})
	var out []string
	for s := range t.Tokens(buf) {
		tok := string(s.Text(buf))
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
