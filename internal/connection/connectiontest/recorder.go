// Package connectiontest provides an in-memory connection.Sender for tests.
package connectiontest

import (
	"encoding/json"
	"sync"

	"github.com/rickgao/devicechat/internal/protocol"
)

// Recorder captures frames per session. Sessions must be added with Connect
// before they receive anything, mirroring a live hub.
type Recorder struct {
	mu     sync.Mutex
	live   map[string]bool
	frames map[string][]protocol.Envelope
}

// NewRecorder creates a Recorder with the given live sessions.
func NewRecorder(sessionIDs ...string) *Recorder {
	r := &Recorder{
		live:   make(map[string]bool),
		frames: make(map[string][]protocol.Envelope),
	}
	for _, id := range sessionIDs {
		r.live[id] = true
	}
	return r
}

// Connect marks a session live.
func (r *Recorder) Connect(sessionID string) {
	r.mu.Lock()
	r.live[sessionID] = true
	r.mu.Unlock()
}

// Disconnect marks a session gone.
func (r *Recorder) Disconnect(sessionID string) {
	r.mu.Lock()
	delete(r.live, sessionID)
	r.mu.Unlock()
}

// Deliver records frame for sessionID if it is live.
func (r *Recorder) Deliver(sessionID string, frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.live[sessionID] {
		return false
	}
	r.frames[sessionID] = append(r.frames[sessionID], decode(frame))
	return true
}

// Broadcast records frame for every live session.
func (r *Recorder) Broadcast(frame []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	env := decode(frame)
	for id := range r.live {
		r.frames[id] = append(r.frames[id], env)
	}
	return len(r.live)
}

// Frames returns everything sessionID received.
func (r *Recorder) Frames(sessionID string) []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Envelope(nil), r.frames[sessionID]...)
}

// Events returns the frames sessionID received with the given event name.
func (r *Recorder) Events(sessionID, event string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range r.Frames(sessionID) {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// Reset forgets recorded frames but keeps live sessions.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.frames = make(map[string][]protocol.Envelope)
	r.mu.Unlock()
}

func decode(frame []byte) protocol.Envelope {
	var env protocol.Envelope
	_ = json.Unmarshal(frame, &env)
	return env
}
