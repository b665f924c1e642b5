package ui

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock for stage timings.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestModel(t *testing.T) (*buildModel, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	m := newBuildModel(NewProgressTracker(), "/src/app")
	m.styles = NoColorStyles()
	m.now = clock.now
	m.stageAt = clock.now()
	return m, clock
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestBuildModel_ViewDuringIndexing(t *testing.T) {
	// Given: a scan that took 250ms followed by half the indexing stage
	m, clock := newTestModel(t)
	clock.advance(250 * time.Millisecond)
	m.apply(progressUpdateMsg{Stage: StageIndexing, Current: 0, Total: 200})
	m.apply(progressUpdateMsg{Stage: StageIndexing, Current: 100, Total: 200, CurrentFile: "src/components/Button.tsx"})

	// When: rendering
	view := m.View()

	// Then: the finished stage carries its time and the bar its counts
	for _, want := range []string{
		"✓ Scan 250ms", "Index", "○ Save",
		"100 / 200 files", "50%",
		"tokindex index  /src/app", "src/components/Button.tsx", "q to quit",
	} {
		assert.Contains(t, view, want)
	}
}

func TestBuildModel_ViewUnknownTotal(t *testing.T) {
	m, _ := newTestModel(t)
	m.apply(progressUpdateMsg{Stage: StageScanning, Current: 1500})

	assert.Contains(t, m.View(), "Scanning... 1,500 files")
}

func TestBuildModel_RecentWarnings(t *testing.T) {
	// Given: five file warnings and one error without a file
	m, _ := newTestModel(t)
	for i := range 5 {
		m.apply(errorMsg{File: fmt.Sprintf("file%d.txt", i), Err: errors.New("unreadable"), IsWarn: true})
	}
	m.apply(errorMsg{Err: errors.New("walk failed")})

	// When: rendering
	view := m.View()

	// Then: only the latest warnings are listed and the footer counts all
	assert.NotContains(t, view, "file0.txt")
	assert.NotContains(t, view, "file1.txt")
	for _, want := range []string{"file2.txt: unreadable", "file3.txt", "file4.txt", "5 warnings", "1 errors"} {
		assert.Contains(t, view, want)
	}
	assert.NotContains(t, view, "walk failed")
}

func TestBuildModel_Update(t *testing.T) {
	t.Run("quit key", func(t *testing.T) {
		m, _ := newTestModel(t)

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

		require.NotNil(t, cmd)
		assert.True(t, m.quitting)
		assert.Equal(t, "Cancelled.\n", m.View())
	})

	t.Run("window size", func(t *testing.T) {
		m, _ := newTestModel(t)

		m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})

		assert.Equal(t, 30, m.width)
		assert.Equal(t, 20, m.bar.Width)
	})

	t.Run("progress keeps running", func(t *testing.T) {
		m, _ := newTestModel(t)

		_, cmd := m.Update(progressUpdateMsg{Stage: StageIndexing, Current: 1, Total: 2})

		assert.Nil(t, cmd)
		assert.Equal(t, StageIndexing, m.stage)
	})

	t.Run("complete quits with summary", func(t *testing.T) {
		m, _ := newTestModel(t)

		_, cmd := m.Update(completeMsg{Files: 1200, Tokens: 34000, Duration: 2 * time.Second})

		require.NotNil(t, cmd)
		assert.True(t, m.complete)
		view := m.View()
		assert.Contains(t, view, "✓ Indexed 1,200 files in 2s")
		assert.Contains(t, view, "34,000")
	})
}

func TestBuildModel_RenderSummary(t *testing.T) {
	// Given: a build with every kind of file outcome
	m, _ := newTestModel(t)
	m.apply(completeMsg{
		Files:     10,
		Skipped:   3,
		Binary:    2,
		Empty:     1,
		Faulted:   1,
		Tokens:    500,
		Trigrams:  90,
		Bytes:     4096,
		IndexSize: 2048,
		IndexPath: ".tokindex/index.tkix",
		Warnings:  1,
		Stages:    StageTimings{Scan: 5 * time.Millisecond, Build: 40 * time.Millisecond, Save: 2 * time.Millisecond},
	})

	// When: rendering the completion panel
	out := m.renderSummary()

	// Then: the breakdown accounts for every file
	for _, want := range []string{
		"6 indexed · 2 binary · 1 empty · 1 faulted · 3 skipped",
		"4.0 KiB",
		"2.0 KiB  .tokindex/index.tkix",
		"scan 5ms · build 40ms · save 2ms",
		"⚠ 1 warnings",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "errors")
}

func TestFileBreakdown(t *testing.T) {
	tests := []struct {
		name  string
		stats CompletionStats
		want  string
	}{
		{"all indexed", CompletionStats{Files: 4}, "4 indexed"},
		{"faulted only", CompletionStats{Files: 4, Faulted: 1}, "3 indexed · 1 faulted"},
		{"large counts", CompletionStats{Files: 2500, Binary: 1200}, "1,300 indexed · 1,200 binary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fileBreakdown(tt.stats))
		})
	}
}

func TestTUIRenderer_AppliesBeforeStart(t *testing.T) {
	// Given: a renderer whose program was never started
	m, _ := newTestModel(t)
	r := &TUIRenderer{out: &bytes.Buffer{}, model: m}

	// When: events arrive
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 3, Total: 4})
	r.AddError(ErrorEvent{File: "a.bin", Err: errors.New("short read"), IsWarn: true})
	r.Complete(CompletionStats{Files: 4})

	// Then: the model sees them and Stop is a no-op
	assert.True(t, m.complete)
	assert.Len(t, m.warnings, 1)
	assert.Equal(t, 1, m.tracker.Stats().WarnCount)
	assert.NoError(t, r.Stop())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{250 * time.Millisecond, "250ms"},
		{45 * time.Second, "45s"},
		{2 * time.Minute, "2m"},
		{2*time.Minute + 15*time.Second, "2m 15s"},
		{time.Hour + 5*time.Minute, "1h 5m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestShortenPath(t *testing.T) {
	tests := []struct {
		path  string
		width int
		want  string
	}{
		{"a.go", 10, "a.go"},
		{"internal/very/deep/package/main.go", 20, ".../package/main.go"},
		{"dir/abcdefghijklmnop.go", 10, "...mnop.go"},
		{"abcdefghijklmnop", 8, "...lmnop"},
		{"abcdef", 3, "..."},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := shortenPath(tt.path, tt.width)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), max(tt.width, len(tt.path)))
		})
	}
}
