package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced events")
		return nil
	}
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"single create passes through", []Operation{OpCreate}, OpCreate},
		{"repeated modify", []Operation{OpModify, OpModify, OpModify}, OpModify},
		{"create then modify stays create", []Operation{OpCreate, OpModify}, OpCreate},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, OpDelete},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, OpModify},
		{"rename keeps latest", []Operation{OpRename, OpCreate}, OpCreate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer with a short window
			d := NewDebouncer(30 * time.Millisecond)
			defer d.Stop()

			// When: the operations arrive for one path
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "main.go", Operation: op})
			}

			// Then: a single merged event is emitted
			events := receive(t, d)
			require.Len(t, events, 1)
			assert.Equal(t, "main.go", events[0].Path)
			assert.Equal(t, tt.want, events[0].Operation)
		})
	}
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "tmp.go", Operation: OpCreate})
	d.Add(FileEvent{Path: "tmp.go", Operation: OpDelete})

	select {
	case events := <-d.Output():
		t.Fatalf("unexpected batch: %v", events)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	for _, p := range []string{"c.go", "a.go", "b.go"} {
		d.Add(FileEvent{Path: p, Operation: OpModify})
	}

	events := receive(t, d)
	require.Len(t, events, 3)
	assert.Equal(t, "a.go", events[0].Path)
	assert.Equal(t, "b.go", events[1].Path)
	assert.Equal(t, "c.go", events[2].Path)
}

func TestDebouncer_WindowRestartsOnActivity(t *testing.T) {
	// Given: events arriving faster than the window
	d := NewDebouncer(200 * time.Millisecond)
	defer d.Stop()
	start := time.Now()
	for range 4 {
		d.Add(FileEvent{Path: "busy.go", Operation: OpModify})
		time.Sleep(20 * time.Millisecond)
	}

	// Then: nothing is emitted until the path goes quiet
	events := receive(t, d)
	assert.Len(t, events, 1)
	assert.GreaterOrEqual(t, time.Since(start), 260*time.Millisecond)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "x", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "y", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}
