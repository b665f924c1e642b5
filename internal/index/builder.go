package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/mapfile"
	"github.com/Aman-CERP/tokindex/internal/tokenizer"
	"github.com/Aman-CERP/tokindex/internal/trigram"
)

// Content is a borrowed, read-only view of one file's bytes. The builder
// closes it as soon as the file has been tokenized.
type Content interface {
	Bytes() []byte
	Close() error
}

// BytesContent adapts an in-memory buffer to Content.
type BytesContent []byte

// Bytes returns the buffer.
func (b BytesContent) Bytes() []byte { return b }

// Close is a no-op.
func (b BytesContent) Close() error { return nil }

// Document is one file offered to the builder, in admission order.
type Document struct {
	// Path is recorded verbatim in the file table.
	Path string

	// Open maps or reads the content. A failing Open skips the file.
	Open func() (Content, error)
}

// FileDocument offers the file at absPath under the recorded path rel.
// Its content is memory-mapped when the builder admits it.
func FileDocument(rel, absPath string) Document {
	return Document{
		Path: rel,
		Open: func() (Content, error) {
			f, err := mapfile.Open(absPath)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Workers bounds concurrent tokenization (0 = NumCPU).
	Workers int

	// Policy is the tokenizer policy; it is stored in the index metadata.
	Policy tokenizer.Policy

	// Root is recorded in the metadata.
	Root string

	// Now stamps BuiltAt (defaults to time.Now).
	Now func() time.Time

	// OnFileDone is called from worker goroutines after each admitted file.
	OnFileDone func(done int, path string)
}

// FileWarning is a non-fatal per-file build problem.
type FileWarning struct {
	Path string
	Err  error
}

// BuildSummary aggregates the outcome of one build.
type BuildSummary struct {
	Files    int   // file records written
	Skipped  int   // files that could not be opened (no record)
	Binary   int   // records without postings: binary content
	Empty    int   // records without postings: zero bytes
	Faulted  int   // records without postings: mapping failed while reading
	Tokens   int   // distinct token hashes
	Trigrams int   // distinct trigrams
	Bytes    int64 // total content bytes admitted
	Warnings []FileWarning
	Duration time.Duration
}

// Builder turns a stream of documents into a TokenIndex.
type Builder struct {
	opts BuilderOptions
	tok  *tokenizer.Tokenizer
}

// NewBuilder creates a Builder.
func NewBuilder(opts BuilderOptions) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Policy == (tokenizer.Policy{}) {
		opts.Policy = tokenizer.DefaultPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Builder{opts: opts, tok: tokenizer.New(opts.Policy)}
}

type fileOutcome int

const (
	outcomeIndexed fileOutcome = iota
	outcomeBinary
	outcomeEmpty
	outcomeFaulted
)

// Build consumes docs until the channel is closed and returns the finished index.
// FileIds are assigned in arrival order by this goroutine; tokenization runs on
// a bounded worker pool and merges into sharded posting maps.
func (b *Builder) Build(ctx context.Context, docs <-chan Document) (*TokenIndex, *BuildSummary, error) {
	start := time.Now()
	tokens := NewPostingMap[uint64]()
	trigrams := NewPostingMap[uint32]()

	var (
		files   []FileRecord
		summary BuildSummary
		mu      sync.Mutex // guards summary fields written by workers
		done    atomic.Int64
	)

	g := new(errgroup.Group)
	g.SetLimit(b.opts.Workers)

	slog.Debug("index_build_started",
		slog.String("root", b.opts.Root),
		slog.Int("workers", b.opts.Workers))

admit:
	for {
		var (
			doc Document
			ok  bool
		)
		select {
		case <-ctx.Done():
			break admit
		case doc, ok = <-docs:
			if !ok {
				break admit
			}
		}

		content, err := doc.Open()
		if err != nil {
			warn := tkerrors.UnreadableFile(doc.Path, err)
			slog.Warn("index_file_skipped",
				slog.String("path", doc.Path),
				slog.String("error", err.Error()))
			mu.Lock()
			summary.Skipped++
			summary.Warnings = append(summary.Warnings, FileWarning{Path: doc.Path, Err: warn})
			mu.Unlock()
			continue
		}

		id := uint32(len(files))
		size := int64(len(content.Bytes()))
		files = append(files, NewFileRecord(doc.Path, size))
		summary.Bytes += size

		path := doc.Path
		g.Go(func() error {
			outcome, ferr := b.indexFile(id, content, tokens, trigrams)
			mu.Lock()
			switch outcome {
			case outcomeBinary:
				summary.Binary++
			case outcomeEmpty:
				summary.Empty++
			case outcomeFaulted:
				summary.Faulted++
				summary.Warnings = append(summary.Warnings, FileWarning{Path: path, Err: tkerrors.UnreadableFile(path, ferr)})
			}
			mu.Unlock()
			if outcome == outcomeFaulted {
				slog.Warn("index_file_faulted",
					slog.String("path", path),
					slog.String("error", ferr.Error()))
			}
			if b.opts.OnFileDone != nil {
				b.opts.OnFileDone(int(done.Add(1)), path)
			}
			return nil
		})
	}

	// Workers never fail; Wait only drains them so every mapping is released.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	idx, err := New(Meta{
		Version: FormatVersion,
		BuiltAt: b.opts.Now().UTC(),
		Root:    b.opts.Root,
		Policy:  b.tok.Policy(),
	}, files, tokens.Freeze(), trigrams.Freeze())
	if err != nil {
		return nil, nil, tkerrors.InternalError("built index violates invariants", err)
	}

	summary.Files = idx.FileCount()
	summary.Tokens = idx.TokenCount()
	summary.Trigrams = idx.TrigramCount()
	summary.Duration = time.Since(start)

	slog.Debug("index_build_complete",
		slog.Int("files", summary.Files),
		slog.Int("skipped", summary.Skipped),
		slog.Int("tokens", summary.Tokens),
		slog.Int("trigrams", summary.Trigrams),
		slog.Int64("duration_ms", summary.Duration.Milliseconds()))

	return idx, &summary, nil
}

// indexFile tokenizes one file and merges its distinct tokens and trigrams.
// A fault while touching mapped memory (the file shrank under the mapping)
// is recovered and reported; nothing from that file is merged.
func (b *Builder) indexFile(id uint32, c Content, tokens *PostingMap[uint64], trigrams *PostingMap[uint32]) (outcome fileOutcome, err error) {
	defer func() { _ = c.Close() }()
	defer func() {
		if r := recover(); r != nil {
			outcome, err = outcomeFaulted, fmt.Errorf("fault reading content: %v", r)
		}
	}()
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))

	buf := c.Bytes()
	if len(buf) == 0 {
		return outcomeEmpty, nil
	}
	if tokenizer.IsBinary(buf) {
		return outcomeBinary, nil
	}

	seen := make(map[string]struct{})
	triSeen := make(map[uint32]struct{})
	var (
		hashes []uint64
		tris   []uint32
		window []uint32
	)

	it := b.tok.Iter(buf)
	for {
		span, ok := it.Next()
		if !ok {
			break
		}
		text := span.Text(buf)
		if _, dup := seen[string(text)]; dup {
			continue
		}
		seen[string(text)] = struct{}{}
		hashes = append(hashes, tokenizer.Hash(text))

		window = trigram.Append(window[:0], text)
		for _, t := range window {
			if _, dup := triSeen[t]; !dup {
				triSeen[t] = struct{}{}
				tris = append(tris, t)
			}
		}
	}

	tokens.AddAll(hashes, id)
	trigrams.AddAll(tris, id)
	return outcomeIndexed, nil
}
