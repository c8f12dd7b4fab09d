// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import "time"

// listenerEntry binds a listening socket to the task started for each
// connection it accepts.
type listenerEntry struct {
	l     *Listener
	entry Task

	// pausedUntil keeps a failing listener out of the poll set.
	pausedUntil time.Time
}

func (le *listenerEntry) paused(now time.Time) bool {
	return now.Before(le.pausedUntil)
}

// registry maps session identity to live sessions and holds the listener
// table. Sessions are kept in a dense slice with an index by Serial;
// removal swaps the last session into the freed slot.
// Owned by the reactor and mutated only on its loop thread.
type registry struct {
	sessions  []*Session
	index     map[Serial]int
	listeners []listenerEntry
}

func newRegistry() *registry {
	return &registry{index: make(map[Serial]int)}
}

func (g *registry) add(s *Session) {
	g.index[s.id] = len(g.sessions)
	g.sessions = append(g.sessions, s)
}

func (g *registry) get(id Serial) (*Session, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.sessions[i], true
}

// remove drops the session with the given id.
// Reports false if it was not registered.
func (g *registry) remove(id Serial) bool {
	i, ok := g.index[id]
	if !ok {
		return false
	}
	last := len(g.sessions) - 1
	if i != last {
		moved := g.sessions[last]
		g.sessions[i] = moved
		g.index[moved.id] = i
	}
	g.sessions[last] = nil
	g.sessions = g.sessions[:last]
	delete(g.index, id)
	return true
}

func (g *registry) len() int { return len(g.sessions) }

// snapshot copies the live sessions so callers may tear them down while
// iterating.
func (g *registry) snapshot() []*Session {
	out := make([]*Session, len(g.sessions))
	copy(out, g.sessions)
	return out
}

func (g *registry) addListener(l *Listener, entry Task) {
	g.listeners = append(g.listeners, listenerEntry{l: l, entry: entry})
}
