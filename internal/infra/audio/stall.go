package audio

import (
	"sync/atomic"
	"time"
)

// stallTimeout is how long a live input may go without delivering a frame
// before it is treated as lost.
const stallTimeout = 2 * time.Second

// stallWatch tracks the time of the last frame from an input device.
type stallWatch struct {
	last    atomic.Int64
	timeout time.Duration
	now     func() time.Time
}

func newStallWatch(timeout time.Duration, now func() time.Time) *stallWatch {
	w := &stallWatch{timeout: timeout, now: now}
	w.Touch()
	return w
}

// Touch records that a frame arrived. Safe to call from the audio thread.
func (w *stallWatch) Touch() {
	w.last.Store(w.now().UnixNano())
}

// Stalled reports whether no frame has arrived within the timeout.
func (w *stallWatch) Stalled() bool {
	return w.now().Sub(time.Unix(0, w.last.Load())) > w.timeout
}
