// Package store persists a TokenIndex as a single self-describing container
// file and loads it back through a read-only memory mapping.
package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/index"
	"github.com/Aman-CERP/tokindex/internal/tokenizer"
)

// Magic identifies a tokindex container.
var Magic = [4]byte{'T', 'K', 'I', 'X'}

const (
	headerSize  = 4 + 2
	trailerSize = 4
)

var le = binary.LittleEndian

// Encode writes idx in container format. Keys are written in ascending order,
// so equal indexes encode to identical bytes.
func Encode(w io.Writer, idx *index.TokenIndex) (int64, error) {
	crc := crc32.NewIEEE()
	cw := &countingWriter{w: io.MultiWriter(w, crc)}
	bw := bufio.NewWriterSize(cw, 64*1024)
	e := &encoder{w: bw}

	meta := idx.Meta()
	e.bytes(Magic[:])
	e.u16(index.FormatVersion)

	e.u32(uint32(idx.FileCount()))
	e.u64(uint64(idx.TokenCount()))
	e.u64(uint64(idx.TrigramCount()))
	e.u64(uint64(meta.BuiltAt.UnixNano()))
	e.str(meta.Root)
	e.u16(uint16(meta.Policy.MinLength))
	e.str(meta.Policy.Connectors)

	for _, f := range idx.Files() {
		e.str(f.Path)
		e.u64(uint64(f.Size))
		e.str(f.Ext)
	}

	hashes := idx.TokenHashes()
	e.u64(uint64(len(hashes)))
	for _, h := range hashes {
		e.u64(h)
		e.bitmap(idx.Postings(h))
	}

	keys := idx.TrigramKeys()
	e.u64(uint64(len(keys)))
	for _, t := range keys {
		e.u32(t)
		e.bitmap(idx.TrigramPostings(t))
	}

	if e.err != nil {
		return cw.n, e.err
	}
	if err := bw.Flush(); err != nil {
		return cw.n, err
	}

	var sum [trailerSize]byte
	le.PutUint32(sum[:], crc.Sum32())
	if _, err := w.Write(sum[:]); err != nil {
		return cw.n, err
	}
	return cw.n + trailerSize, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// encoder keeps the first write error and turns later writes into no-ops.
type encoder struct {
	w   *bufio.Writer
	buf [8]byte
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) u16(v uint16) { le.PutUint16(e.buf[:2], v); e.bytes(e.buf[:2]) }
func (e *encoder) u32(v uint32) { le.PutUint32(e.buf[:4], v); e.bytes(e.buf[:4]) }
func (e *encoder) u64(v uint64) { le.PutUint64(e.buf[:8], v); e.bytes(e.buf[:8]) }

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	if e.err == nil {
		_, e.err = e.w.WriteString(s)
	}
}

func (e *encoder) bitmap(bm *roaring.Bitmap) {
	size := bm.GetSerializedSizeInBytes()
	if size > math.MaxUint32 {
		if e.err == nil {
			e.err = fmt.Errorf("posting set too large: %d bytes", size)
		}
		return
	}
	e.u32(uint32(size))
	if e.err == nil {
		_, e.err = bm.WriteTo(e.w)
	}
}

// Decode parses a container. The returned index owns all of its memory, so
// data may be unmapped or reused once Decode returns.
func Decode(data []byte) (idx *index.TokenIndex, err error) {
	if len(data) < headerSize {
		return nil, tkerrors.CorruptContainer("", "truncated header", nil)
	}
	if [4]byte(data[:4]) != Magic {
		return nil, tkerrors.CorruptContainer("", fmt.Sprintf("bad magic %q", data[:4]), nil)
	}
	if v := le.Uint16(data[4:6]); v != index.FormatVersion {
		return nil, tkerrors.UnsupportedVersion(v, index.FormatVersion)
	}
	if len(data) < headerSize+trailerSize {
		return nil, tkerrors.CorruptContainer("", "truncated trailer", nil)
	}
	body, trailer := data[:len(data)-trailerSize], data[len(data)-trailerSize:]
	if want, got := le.Uint32(trailer), crc32.ChecksumIEEE(body); want != got {
		return nil, tkerrors.CorruptContainer("", fmt.Sprintf("checksum mismatch (stored %08x, computed %08x)", want, got), nil)
	}

	defer func() {
		if r := recover(); r != nil {
			idx, err = nil, tkerrors.CorruptContainer("", fmt.Sprintf("malformed posting data: %v", r), nil)
		}
	}()

	d := &decoder{buf: body, off: headerSize}
	idx, reason := d.decode()
	if reason != "" {
		return nil, tkerrors.CorruptContainer("", reason, d.cause)
	}
	return idx, nil
}

type decoder struct {
	buf   []byte
	off   int
	short bool
	cause error
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) take(n int) []byte {
	if d.short || n < 0 || n > d.remaining() {
		d.short = true
		return nil
	}
	b := d.buf[d.off : d.off+n : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return le.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return le.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return le.Uint64(b)
	}
	return 0
}

func (d *decoder) str() string {
	n := d.u32()
	if uint64(n) > uint64(d.remaining()) {
		d.short = true
		return ""
	}
	return string(d.take(int(n)))
}

func (d *decoder) bitmap() (*roaring.Bitmap, bool) {
	n := d.u32()
	raw := d.take(int(n))
	if d.short {
		return nil, false
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(raw); err != nil {
		d.cause = err
		return nil, false
	}
	return bm, true
}

// count reads a section count and rejects values the remaining bytes cannot hold.
func (d *decoder) count(minEntry int) (int, bool) {
	n := d.u64()
	if d.short || n > uint64(d.remaining()/minEntry) {
		return 0, false
	}
	return int(n), true
}

// decode returns a non-empty reason when the body is malformed.
func (d *decoder) decode() (*index.TokenIndex, string) {
	fileCount := d.u32()
	tokenCount := d.u64()
	trigramCount := d.u64()
	builtAt := int64(d.u64())
	root := d.str()
	minLen := d.u16()
	connectors := d.str()
	if d.short {
		return nil, "truncated metadata"
	}

	// path len + size + ext len
	if uint64(fileCount) > uint64(d.remaining()/(4+8+4)) {
		return nil, "file table larger than container"
	}
	files := make([]index.FileRecord, 0, fileCount)
	for i := uint32(0); i < fileCount; i++ {
		p := d.str()
		size := d.u64()
		ext := d.str()
		if d.short {
			return nil, "truncated file table"
		}
		if size > math.MaxInt64 {
			return nil, fmt.Sprintf("file %d has invalid size", i)
		}
		files = append(files, index.FileRecord{Path: p, Size: int64(size), Ext: ext})
	}

	n, ok := d.count(8 + 4)
	if !ok {
		return nil, "truncated posting section"
	}
	if uint64(n) != tokenCount {
		return nil, fmt.Sprintf("token count mismatch (metadata %d, section %d)", tokenCount, n)
	}
	postings := make(map[uint64]*roaring.Bitmap, n)
	for i := 0; i < n; i++ {
		h := d.u64()
		bm, ok := d.bitmap()
		if !ok {
			return nil, fmt.Sprintf("bad posting set for token %016x", h)
		}
		if _, dup := postings[h]; dup {
			return nil, fmt.Sprintf("duplicate token %016x", h)
		}
		postings[h] = bm
	}

	n, ok = d.count(4 + 4)
	if !ok {
		return nil, "truncated trigram section"
	}
	if uint64(n) != trigramCount {
		return nil, fmt.Sprintf("trigram count mismatch (metadata %d, section %d)", trigramCount, n)
	}
	trigrams := make(map[uint32]*roaring.Bitmap, n)
	for i := 0; i < n; i++ {
		t := d.u32()
		bm, ok := d.bitmap()
		if !ok {
			return nil, fmt.Sprintf("bad posting set for trigram %06x", t)
		}
		if _, dup := trigrams[t]; dup {
			return nil, fmt.Sprintf("duplicate trigram %06x", t)
		}
		trigrams[t] = bm
	}

	if d.remaining() != 0 {
		return nil, fmt.Sprintf("%d trailing bytes", d.remaining())
	}

	idx, err := index.New(index.Meta{
		Version: index.FormatVersion,
		BuiltAt: time.Unix(0, builtAt).UTC(),
		Root:    root,
		Policy:  tokenizer.Policy{MinLength: int(minLen), Connectors: connectors},
	}, files, postings, trigrams)
	if err != nil {
		d.cause = err
		return nil, err.Error()
	}
	return idx, ""
}
