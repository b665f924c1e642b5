package tokenizer

import (
	"bytes"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(t *Tokenizer, buf []byte) []string {
	var out []string
	for s := range t.Tokens(buf) {
		out = append(out, string(s.Text(buf)))
	}
	return out
}

func TestTokens_DefaultPolicy(t *testing.T) {
	tok := New(DefaultPolicy())

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "basic sentence", content: "Hello, World! This is a test.", want: []string{"Hello", "World", "This", "is", "test"}},
		{name: "min length filter", content: "a ab abc abcd", want: []string{"ab", "abc", "abcd"}},
		{name: "numeric tokens", content: "test123 456 ab7cd", want: []string{"test123", "456", "ab7cd"}},
		{name: "underscore connector", content: "run_game start_server", want: []string{"run_game", "start_server"}},
		{name: "hyphen connector", content: "kebab-case my-component", want: []string{"kebab-case", "my-component"}},
		{name: "leading and trailing connectors", content: "-flag_ __init__", want: []string{"-flag_", "__init__"}},
		{name: "dots split", content: "package.module.Class", want: []string{"package", "module", "Class"}},
		{name: "operators only single chars", content: "a+b=c*d/e", want: nil},
		{name: "only delimiters", content: "!@#$%^&*()", want: nil},
		{name: "empty", content: "", want: nil},
		{name: "token at end of buffer", content: "  tail", want: []string{"tail"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, texts(tok, []byte(tt.content)))
		})
	}
}

func TestTokens_CustomConnectors(t *testing.T) {
	tests := []struct {
		name       string
		connectors string
		want       []string
	}{
		{name: "underscore only", connectors: "_", want: []string{"my", "component", "user_service"}},
		{name: "none", connectors: "", want: []string{"my", "component", "user", "service"}},
		{name: "dot added", connectors: "_-.", want: []string{"my-component", "user_service.go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := New(Policy{MinLength: 2, Connectors: tt.connectors})
			assert.Equal(t, tt.want, texts(tok, []byte("my-component(user_service.go)")))
		})
	}
}

func TestTokens_MinLengthPolicy(t *testing.T) {
	tok := New(Policy{MinLength: 4})

	assert.Equal(t, []string{"abcd", "abcde"}, texts(tok, []byte("ab abc abcd abcde")))
	assert.Equal(t, 1, New(Policy{MinLength: 0}).Policy().MinLength)
}

func TestTokens_InvalidUTF8IsBytewise(t *testing.T) {
	tok := New(DefaultPolicy())
	buf := []byte("caf\xc3\xa9 \xff\xfeok")

	// Then: high bytes delimit, nothing panics
	assert.Equal(t, []string{"caf", "ok"}, texts(tok, buf))
}

func TestTokens_Idempotent(t *testing.T) {
	tok := New(DefaultPolicy())
	buf := []byte("func main() { fmt.Println(\"hello world\") }")

	// When: ranging over the same sequence twice
	seq := tok.Tokens(buf)
	first := slices.Collect(seq)
	second := slices.Collect(seq)

	// Then: the sequence restarts and yields the same spans
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestTokens_SpansAreZeroCopy(t *testing.T) {
	tok := New(DefaultPolicy())
	buf := []byte("alpha beta")

	var spans []Span
	for s := range tok.Tokens(buf) {
		spans = append(spans, s)
	}
	require.Len(t, spans, 2)
	assert.Equal(t, Span{Start: 6, End: 10}, spans[1])
	assert.Equal(t, 4, spans[1].Len())

	// Mutating the buffer is visible through the span text
	buf[6] = 'B'
	assert.Equal(t, "Beta", string(spans[1].Text(buf)))
}

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want bool
	}{
		{name: "text", buf: []byte("plain text"), want: false},
		{name: "null at offset 10", buf: append([]byte("0123456789\x00"), []byte("alpha beta")...), want: true},
		{name: "null at last sniffed byte", buf: append(bytes.Repeat([]byte{'a'}, BinarySniffLen-1), 0), want: true},
		{name: "null after sniff window", buf: append(bytes.Repeat([]byte{'a'}, BinarySniffLen), 0), want: false},
		{name: "empty", buf: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBinary(tt.buf))
		})
	}
}

func TestTokens_BinaryYieldsNothing(t *testing.T) {
	tok := New(DefaultPolicy())
	buf := []byte("alpha beta\x00gamma delta")

	assert.Empty(t, texts(tok, buf))
}

func TestHash_CaseSensitive(t *testing.T) {
	assert.NotEqual(t, HashString("Hello"), HashString("hello"))
	assert.Equal(t, Hash([]byte("hello")), HashString("hello"))
}

func TestQueryTokens_MatchContentHashes(t *testing.T) {
	tok := New(DefaultPolicy())
	content := []byte("def process_data(input_buffer):")

	hashes := map[uint64]bool{}
	for s := range tok.Tokens(content) {
		hashes[Hash(s.Text(content))] = true
	}

	q := tok.QueryTokens("process_data process_data process")
	require.Equal(t, []string{"process_data", "process"}, q)
	assert.True(t, hashes[HashString(q[0])])
	assert.False(t, hashes[HashString(q[1])])
}
