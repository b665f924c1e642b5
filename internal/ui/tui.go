package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// recentWarnings is how many per-file warnings the dashboard keeps on screen.
const recentWarnings = 3

// TUIRenderer draws a live build dashboard with bubbletea.
type TUIRenderer struct {
	out   io.Writer
	model *buildModel

	mu      sync.Mutex
	program *tea.Program
	exited  chan struct{}
	cancel  context.CancelFunc
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a terminal")
	}
	m := newBuildModel(NewProgressTracker(), cfg.ProjectDir)
	m.styles = GetStyles(cfg.NoColor || DetectNoColor())
	return &TUIRenderer{out: cfg.Output, model: m}, nil
}

// Start implements Renderer. Calling it twice is a no-op.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	p := tea.NewProgram(r.model, tea.WithContext(ctx), tea.WithOutput(r.out), tea.WithAltScreen())
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		_, _ = p.Run()
	}()
	r.program, r.exited = p, exited
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) { r.send(progressUpdateMsg(event)) }

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) { r.send(errorMsg(event)) }

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) { r.send(completeMsg(stats)) }

// send hands msg to the running program, or applies it directly before Start.
func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		r.model.apply(msg)
		return
	}
	p.Send(msg)
}

// Stop implements Renderer. It waits briefly for the program to exit and
// then prints the completion panel, which the alt screen would otherwise hide.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p, exited, cancel := r.program, r.exited, r.cancel
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	p.Quit()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		cancel()
		return nil
	}
	cancel()

	if r.model.complete {
		_, _ = fmt.Fprint(r.out, r.model.renderSummary())
	}
	return nil
}

type (
	progressUpdateMsg ProgressEvent
	errorMsg          ErrorEvent
	completeMsg       CompletionStats
	redrawMsg         time.Time
)

// stageLabels are the dashboard names of the counted stages, in order.
var stageLabels = []struct {
	stage Stage
	label string
}{
	{StageScanning, "Scan"},
	{StageIndexing, "Index"},
	{StagePersisting, "Save"},
}

// buildModel is the bubbletea model of one build. All fields except the
// tracker are owned by the program goroutine.
type buildModel struct {
	tracker    *ProgressTracker
	projectDir string
	styles     Styles
	now        func() time.Time

	spinner spinner.Model
	bar     progress.Model
	width   int

	stage     Stage
	stageAt   time.Time
	stageTook map[Stage]time.Duration
	warnings  []ErrorEvent

	quitting bool
	complete bool
	stats    CompletionStats
}

func newBuildModel(tracker *ProgressTracker, projectDir string) *buildModel {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &buildModel{
		tracker:    tracker,
		projectDir: projectDir,
		styles:     DefaultStyles(),
		now:        time.Now,
		spinner:    sp,
		bar:        progress.New(progress.WithSolidFill(ColorLime), progress.WithoutPercentage(), progress.WithWidth(48)),
		width:      80,
		stage:      StageScanning,
		stageAt:    time.Now(),
		stageTook:  make(map[Stage]time.Duration),
	}
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, redraw())
}

func redraw() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return redrawMsg(t) })
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if k := msg.String(); k == "q" || k == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case redrawMsg:
		return m, redraw()
	case progressUpdateMsg, errorMsg, completeMsg:
		if m.apply(msg) {
			return m, tea.Quit
		}
	}
	return m, nil
}

// apply folds a renderer event into the model and reports whether the build is over.
func (m *buildModel) apply(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case progressUpdateMsg:
		if msg.Stage != m.stage {
			m.enterStage(msg.Stage)
			m.tracker.SetStage(msg.Stage, msg.Total)
		}
		m.tracker.Update(msg.Current, msg.CurrentFile)
	case errorMsg:
		ev := ErrorEvent(msg)
		m.tracker.AddError(ev)
		if ev.File != "" {
			m.warnings = append(m.warnings, ev)
			if len(m.warnings) > recentWarnings {
				m.warnings = m.warnings[len(m.warnings)-recentWarnings:]
			}
		}
	case completeMsg:
		m.enterStage(StageComplete)
		m.tracker.SetStage(StageComplete, 0)
		m.complete = true
		m.stats = CompletionStats(msg)
		return true
	}
	return false
}

func (m *buildModel) enterStage(s Stage) {
	t := m.now()
	m.stageTook[m.stage] = t.Sub(m.stageAt)
	m.stage, m.stageAt = s, t
}

// View implements tea.Model.
func (m *buildModel) View() string {
	switch {
	case m.quitting:
		return "Cancelled.\n"
	case m.complete:
		return m.renderSummary()
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()
	lines := []string{m.renderStages(), "", m.renderBar(stats)}
	if stats.CurrentFile != "" {
		lines = append(lines, m.styles.Dim.Render(shortenPath(stats.CurrentFile, width-2)))
	}
	for _, w := range m.warnings {
		lines = append(lines, m.styles.Warning.Render(shortenPath(fmt.Sprintf("⚠ %s: %v", w.File, w.Err), width-2)))
	}

	title := "tokindex index"
	if m.projectDir != "" {
		title += "  " + m.projectDir
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		m.styles.Panel.Width(width).Render(strings.Join(lines, "\n")),
		m.renderFooter(stats),
	) + "\n"
}

// renderStages renders e.g. "✓ Scan 12ms › ⠋ Index › ○ Save".
func (m *buildModel) renderStages() string {
	parts := make([]string, 0, len(stageLabels))
	for _, s := range stageLabels {
		switch {
		case s.stage < m.stage:
			parts = append(parts, m.styles.Success.Render("✓ "+s.label+" "+formatDuration(m.stageTook[s.stage])))
		case s.stage == m.stage:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.label))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.label))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" › "))
}

func (m *buildModel) renderBar(stats ProgressStats) string {
	if stats.Total == 0 {
		if stats.Current == 0 {
			return m.styles.Label.Render(stats.Stage.String() + "...")
		}
		return m.styles.Label.Render(fmt.Sprintf("%s... %s files", stats.Stage, humanize.Comma(int64(stats.Current))))
	}

	counts := []string{fmt.Sprintf("%s / %s files", humanize.Comma(int64(stats.Current)), humanize.Comma(int64(stats.Total)))}
	if stats.Speed.Avg > 0 {
		counts = append(counts, fmt.Sprintf("%.0f files/s", stats.Speed.Avg))
	}
	if stats.ETA > 0 {
		counts = append(counts, "ETA "+formatDuration(stats.ETA))
	}
	return m.bar.ViewAs(stats.Progress) + " " + m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100)) +
		"\n" + m.styles.Speed.Render(strings.Join(counts, " • "))
}

func (m *buildModel) renderFooter(stats ProgressStats) string {
	var parts []string
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("%d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("%d errors", stats.ErrorCount)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render(" │ "))
}

// renderSummary is the completion panel: totals, the per-file outcome
// breakdown and stage timings.
func (m *buildModel) renderSummary() string {
	s := m.stats
	row := func(label, value string) string {
		return m.styles.Label.Render(fmt.Sprintf("  %-10s", label)) + value
	}

	lines := []string{
		m.styles.Success.Render(fmt.Sprintf("✓ Indexed %s files in %s", humanize.Comma(int64(s.Files)), formatDuration(s.Duration))),
		"",
		row("tokens", humanize.Comma(int64(s.Tokens))),
		row("trigrams", humanize.Comma(int64(s.Trigrams))),
		row("read", humanize.IBytes(uint64(s.Bytes))),
	}
	if s.IndexPath != "" {
		lines = append(lines, row("container", humanize.IBytes(uint64(s.IndexSize))+"  "+m.styles.Dim.Render(s.IndexPath)))
	}
	lines = append(lines, row("files", fileBreakdown(s)))
	if st := s.Stages; st.Scan > 0 || st.Build > 0 || st.Save > 0 {
		lines = append(lines, row("stages", fmt.Sprintf("scan %s · build %s · save %s",
			formatDuration(st.Scan), formatDuration(st.Build), formatDuration(st.Save))))
	}
	if s.Warnings > 0 {
		lines = append(lines, "", m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", s.Warnings)))
	}
	if s.Errors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", s.Errors)))
	}

	return m.styles.Panel.Width(max(m.width-4, 40)).Render(strings.Join(lines, "\n")) + "\n"
}

// fileBreakdown renders "1,180 indexed · 12 binary · 2 faulted · 3 skipped",
// omitting zero counters other than indexed.
func fileBreakdown(s CompletionStats) string {
	indexed := s.Files - s.Binary - s.Empty - s.Faulted
	parts := []string{humanize.Comma(int64(max(indexed, 0))) + " indexed"}
	for _, c := range []struct {
		n    int
		name string
	}{
		{s.Binary, "binary"},
		{s.Empty, "empty"},
		{s.Faulted, "faulted"},
		{s.Skipped, "skipped"},
	} {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", humanize.Comma(int64(c.n)), c.name))
		}
	}
	return strings.Join(parts, " · ")
}

// formatDuration renders d as "250ms", "45s", "2m 15s" or "1h 5m".
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0 && s > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// shortenPath fits p into width bytes by dropping whole leading directories,
// falling back to the tail of the name.
func shortenPath(p string, width int) string {
	if len(p) <= width {
		return p
	}
	if width < 4 {
		return strings.Repeat(".", max(width, 0))
	}
	for rest := p; ; {
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			break
		}
		rest = rest[i+1:]
		if len(rest)+4 <= width {
			return ".../" + rest
		}
	}
	return "..." + p[len(p)-(width-3):]
}

var _ Renderer = (*TUIRenderer)(nil)
