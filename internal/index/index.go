// Package index holds the in-memory inverted index and the concurrent builder
// that produces it.
package index

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Aman-CERP/tokindex/internal/tokenizer"
)

// FormatVersion is the container format version written by this build.
const FormatVersion uint16 = 1

// FileRecord describes one indexed file. Its position in the file table is its FileId.
type FileRecord struct {
	Path string // slash-separated, relative to Meta.Root
	Size int64
	Ext  string // lowercase extension including the dot, may be empty
}

// NewFileRecord builds a record, deriving Ext from the path.
func NewFileRecord(p string, size int64) FileRecord {
	return FileRecord{Path: p, Size: size, Ext: Ext(p)}
}

// Ext returns the lowercase extension of p including the dot.
func Ext(p string) string {
	return strings.ToLower(path.Ext(p))
}

// Meta is the index metadata block.
type Meta struct {
	Version      uint16
	FileCount    uint32
	TokenCount   uint64
	TrigramCount uint64
	BuiltAt      time.Time
	Root         string
	Policy       tokenizer.Policy
}

// TokenIndex maps token hashes and trigram keys to posting bitmaps of FileIds.
// It is immutable once constructed; bitmaps returned by accessors must not be modified.
type TokenIndex struct {
	meta     Meta
	files    []FileRecord
	postings map[uint64]*roaring.Bitmap
	trigrams map[uint32]*roaring.Bitmap
}

// New assembles a TokenIndex and checks its invariants: no empty posting set
// and no FileId without a file record. Counts in meta are overwritten from the
// actual contents; callers that need to verify stored counts compare before calling.
func New(meta Meta, files []FileRecord, postings map[uint64]*roaring.Bitmap, trigrams map[uint32]*roaring.Bitmap) (*TokenIndex, error) {
	if postings == nil {
		postings = make(map[uint64]*roaring.Bitmap)
	}
	if trigrams == nil {
		trigrams = make(map[uint32]*roaring.Bitmap)
	}
	if uint64(len(files)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("too many files: %d", len(files))
	}
	n := uint32(len(files))

	for h, bm := range postings {
		if err := checkPosting(bm, n); err != nil {
			return nil, fmt.Errorf("token %016x: %w", h, err)
		}
	}
	for t, bm := range trigrams {
		if err := checkPosting(bm, n); err != nil {
			return nil, fmt.Errorf("trigram %06x: %w", t, err)
		}
	}

	if meta.Version == 0 {
		meta.Version = FormatVersion
	}
	meta.FileCount = n
	meta.TokenCount = uint64(len(postings))
	meta.TrigramCount = uint64(len(trigrams))

	return &TokenIndex{meta: meta, files: files, postings: postings, trigrams: trigrams}, nil
}

func checkPosting(bm *roaring.Bitmap, fileCount uint32) error {
	if bm == nil || bm.IsEmpty() {
		return fmt.Errorf("empty posting set")
	}
	if hi := bm.Maximum(); hi >= fileCount {
		return fmt.Errorf("file id %d out of range (file count %d)", hi, fileCount)
	}
	return nil
}

// Meta returns the index metadata.
func (x *TokenIndex) Meta() Meta { return x.meta }

// FileCount returns the number of file records.
func (x *TokenIndex) FileCount() int { return len(x.files) }

// TokenCount returns the number of distinct token hashes.
func (x *TokenIndex) TokenCount() int { return len(x.postings) }

// TrigramCount returns the number of distinct trigrams.
func (x *TokenIndex) TrigramCount() int { return len(x.trigrams) }

// IsEmpty reports whether the index has no files.
func (x *TokenIndex) IsEmpty() bool { return len(x.files) == 0 }

// File returns the record for a FileId.
func (x *TokenIndex) File(id uint32) (FileRecord, bool) {
	if int64(id) >= int64(len(x.files)) {
		return FileRecord{}, false
	}
	return x.files[id], true
}

// Files returns the file table in FileId order. The slice must not be modified.
func (x *TokenIndex) Files() []FileRecord { return x.files }

// Postings returns the posting set for a token hash, or nil when absent.
func (x *TokenIndex) Postings(hash uint64) *roaring.Bitmap { return x.postings[hash] }

// TrigramPostings returns the posting set for a trigram key, or nil when absent.
func (x *TokenIndex) TrigramPostings(t uint32) *roaring.Bitmap { return x.trigrams[t] }

// TokenHashes returns all token hashes in ascending order.
func (x *TokenIndex) TokenHashes() []uint64 {
	return slices.Sorted(maps.Keys(x.postings))
}

// TrigramKeys returns all trigram keys in ascending order.
func (x *TokenIndex) TrigramKeys() []uint32 {
	return slices.Sorted(maps.Keys(x.trigrams))
}

// Equal reports structural equality: same metadata counts, policy, root,
// file records in the same order and identical posting sets per key.
func (x *TokenIndex) Equal(y *TokenIndex) bool {
	if x == nil || y == nil {
		return x == y
	}
	a, b := x.meta, y.meta
	if a.Version != b.Version || a.FileCount != b.FileCount || a.TokenCount != b.TokenCount ||
		a.TrigramCount != b.TrigramCount || !a.BuiltAt.Equal(b.BuiltAt) || a.Root != b.Root || a.Policy != b.Policy {
		return false
	}
	if !slices.Equal(x.files, y.files) {
		return false
	}
	return equalPostings(x.postings, y.postings) && equalPostings(x.trigrams, y.trigrams)
}

func equalPostings[K comparable](a, b map[K]*roaring.Bitmap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, bm := range a {
		other, ok := b[k]
		if !ok || !bm.Equals(other) {
			return false
		}
	}
	return true
}
