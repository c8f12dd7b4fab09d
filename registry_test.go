// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import "testing"

func TestRegistrySwapRemove(t *testing.T) {
	g := newRegistry()
	for id := Serial(1); id <= 4; id++ {
		g.add(&Session{id: id})
	}
	if !g.remove(2) {
		t.Fatal("remove 2: not found")
	}
	if g.remove(2) {
		t.Fatal("remove 2 twice")
	}
	if g.len() != 3 {
		t.Fatalf("len: got %d, want 3", g.len())
	}
	for _, id := range []Serial{1, 3, 4} {
		s, ok := g.get(id)
		if !ok || s.id != id {
			t.Fatalf("get %d: got %v, %v", id, s, ok)
		}
	}
	if _, ok := g.get(2); ok {
		t.Fatal("removed session still found")
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	g := newRegistry()
	g.add(&Session{id: 1})
	g.add(&Session{id: 2})
	snap := g.snapshot()
	for _, s := range snap {
		g.remove(s.id)
	}
	if g.len() != 0 || len(snap) != 2 {
		t.Fatalf("len=%d snapshot=%d", g.len(), len(snap))
	}
}

func TestSerialsIncrease(t *testing.T) {
	r := &Reactor{}
	a, b := r.nextSerial(), r.nextSerial()
	if a >= b {
		t.Fatalf("serials not increasing: %d >= %d", a, b)
	}
}
