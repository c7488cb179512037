package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// MergeEvent records one union performed by the clusterer.
type MergeEvent struct {
	Sequence  int     `json:"seq"`
	Level     int     `json:"level"`
	Alpha     float64 `json:"alpha"`
	Source    int     `json:"source"`
	Member    int     `json:"member"`
	Root      int     `json:"root"`
	Timestamp int64   `json:"timestamp"`
}

// MergeTracker writes merge events as JSON lines. A nil *MergeTracker is
// valid and records nothing.
type MergeTracker struct {
	mu      sync.Mutex
	closer  io.Closer
	encoder *json.Encoder
	seq     int
	err     error
}

// NewMergeTracker creates (or truncates) filename.
func NewMergeTracker(filename string) (*MergeTracker, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create merge trace: %w", err)
	}
	t := NewMergeTrackerWriter(file)
	t.closer = file
	return t, nil
}

// NewMergeTrackerWriter writes events to w.
func NewMergeTrackerWriter(w io.Writer) *MergeTracker {
	return &MergeTracker{encoder: json.NewEncoder(w)}
}

// LogMerge appends one event. The first write error is kept and returned by
// Close.
func (mt *MergeTracker) LogMerge(level int, alpha float64, source, member, root int) {
	if mt == nil {
		return
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.err != nil {
		return
	}
	mt.seq++
	mt.err = mt.encoder.Encode(MergeEvent{
		Sequence:  mt.seq,
		Level:     level,
		Alpha:     alpha,
		Source:    source,
		Member:    member,
		Root:      root,
		Timestamp: time.Now().Unix(),
	})
}

// Count returns the number of events written.
func (mt *MergeTracker) Count() int {
	if mt == nil {
		return 0
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.seq
}

// Close flushes and closes the underlying file, if any.
func (mt *MergeTracker) Close() error {
	if mt == nil {
		return nil
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.closer != nil {
		if err := mt.closer.Close(); err != nil && mt.err == nil {
			mt.err = err
		}
		mt.closer = nil
	}
	return mt.err
}
