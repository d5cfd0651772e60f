// Package router buffers captured audio while the hybrid batch/streaming
// decision is pending and replays it, in arrival order, into whichever
// pipeline wins.
//
// After [Router.Commit] the catch-up frames and every later live frame go
// through the same sink, so a consumer cannot tell replayed audio from live
// audio.
package router

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/hotmic/pkg/audio"
)

// softLimit is the buffered frame count after which the router starts
// warning. The decision window normally holds six 50ms frames.
const softLimit = 64

type mode int

const (
	modeIdle mode = iota
	modePending
	modeLive
)

// Router is safe for concurrent use: the capture goroutine calls Push while
// the coordinator calls Begin, Commit and Discard.
type Router struct {
	mu     sync.Mutex
	mode   mode
	buf    []audio.Frame
	sink   func(audio.Frame)
	warned bool
}

// New returns an idle router. Frames pushed while idle are dropped.
func New() *Router {
	return &Router{}
}

// Begin starts buffering for a new decision window, dropping anything left
// from a previous session.
func (r *Router) Begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = modePending
	r.buf = r.buf[:0]
	r.sink = nil
	r.warned = false
}

// Push hands over one captured frame. While pending it is buffered; once
// committed it goes straight to the sink.
func (r *Router) Push(f audio.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.mode {
	case modePending:
		r.buf = append(r.buf, f)
		if len(r.buf) > softLimit && !r.warned {
			r.warned = true
			slog.Warn("router: decision buffer above soft limit", "frames", len(r.buf))
		}
	case modeLive:
		r.sink(f)
	}
}

// Commit drains the buffered frames into sink in arrival order and switches
// to live forwarding. It returns the number of frames replayed. Commit is a
// no-op outside a pending window, so the buffer is drained at most once.
func (r *Router) Commit(sink func(audio.Frame)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != modePending {
		return 0
	}
	n := len(r.buf)
	for _, f := range r.buf {
		sink(f)
	}
	clear(r.buf)
	r.buf = r.buf[:0]
	r.sink = sink
	r.mode = modeLive
	return n
}

// Discard drops buffered frames and stops forwarding. It returns the number of
// frames dropped.
func (r *Router) Discard() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.buf)
	clear(r.buf)
	r.buf = r.buf[:0]
	r.sink = nil
	r.mode = modeIdle
	return n
}

// Buffered returns the number of frames waiting for a decision.
func (r *Router) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}
