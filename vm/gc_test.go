package vm

import "testing"

// node is a minimal Traceable+destroyable payload for exercising the
// collector directly, independent of any script-level Value machinery.
type node struct {
	destroyed *bool
	next      Ptr[node]
}

func (n *node) Trace(t Tracer) { n.next.Trace(t) }
func (n *node) Destroy()       { *n.destroyed = true }

// An unrooted box is destroyed exactly once by the collection that first
// finds it unreachable, and becomes permanently invalid afterward.
func TestCollectorDestroysUnreachableOnce(t *testing.T) {
	c := NewCollector(nil)
	destroyed := false
	root := Alloc(c, node{destroyed: &destroyed})
	p := root.Value
	root.Drop() // no longer rooted; only Ptr p refers to it

	if !p.Valid() {
		t.Fatalf("expected pointer valid before any collection")
	}
	c.Collect()
	if !destroyed {
		t.Fatalf("expected node destroyed after collection")
	}
	if p.Valid() {
		t.Fatalf("expected pointer invalid after collection")
	}

	destroyed = false
	c.Collect()
	if destroyed {
		t.Fatalf("destructor ran a second time on an already-collected box")
	}
}

// Two nodes referencing each other, with nothing else rooting the pair,
// are collected together: a reference cycle is not enough to keep either
// alive once both roots are dropped.
func TestCollectorCollectsCycles(t *testing.T) {
	c := NewCollector(nil)
	var aDestroyed, bDestroyed bool

	aRoot := Alloc(c, node{destroyed: &aDestroyed})
	bRoot := Alloc(c, node{destroyed: &bDestroyed})
	aRoot.Value.Get().next = bRoot.Value
	bRoot.Value.Get().next = aRoot.Value

	aRoot.Drop()
	bRoot.Drop()

	c.Collect()
	if !aDestroyed || !bDestroyed {
		t.Fatalf("expected both cyclic nodes destroyed, got a=%v b=%v", aDestroyed, bDestroyed)
	}
}

// A pointer kept alive by an explicit Root survives collection; once the
// Root is dropped, the very next collection invalidates it.
func TestCollectorRootKeepsAlive(t *testing.T) {
	c := NewCollector(nil)
	var destroyed bool
	root := Alloc(c, node{destroyed: &destroyed})
	p := root.Value

	c.Collect()
	if !p.Valid() {
		t.Fatalf("expected rooted pointer to survive collection")
	}
	if destroyed {
		t.Fatalf("did not expect destruction while rooted")
	}

	root.Drop()
	c.Collect()
	if p.Valid() {
		t.Fatalf("expected pointer invalid once root dropped and collected")
	}
	if !destroyed {
		t.Fatalf("expected destruction once unrooted and collected")
	}
}

// Cast reinterprets without a check; DynCast checks and fails cleanly on a
// type mismatch, succeeding only against the box's actual payload type.
func TestCollectorCastAndDynCast(t *testing.T) {
	c := NewCollector(nil)
	root := Alloc(c, 42)
	defer root.Drop()

	same := Cast[int](root.Value)
	if same.Get() == nil || *same.Get() != 42 {
		t.Fatalf("expected Cast to the same type to read through cleanly")
	}

	if _, ok := DynCast[string](root.Value); ok {
		t.Fatalf("expected DynCast to a mismatched type to fail")
	}
	if got, ok := DynCast[int](root.Value); !ok || *got.Get() != 42 {
		t.Fatalf("expected DynCast to the matching type to succeed")
	}
}
