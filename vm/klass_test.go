package vm

import "testing"

// chain builds Grandparent -> Parent -> Child, each a direct subclass of
// the one before, rooted off ctx.ObjectClass.
func chain(t *testing.T, ctx *Context) (grandparent, parent, child Ptr[Klass]) {
	t.Helper()
	g := NewKlass(ctx, ctx.ObjectClass)
	ctx.pin(&g)
	p := NewKlass(ctx, g.Value)
	ctx.pin(&p)
	c := NewKlass(ctx, p.Value)
	ctx.pin(&c)
	return g.Value, p.Value, c.Value
}

// A method defined on a distant ancestor is visible, and equal to what the
// ancestor itself would answer, from a descendant several levels down.
func TestKlassLookupInheritsFromAncestor(t *testing.T) {
	ctx := NewContext(nil)
	grandparent, _, child := chain(t, ctx)

	grandparent.Get().Define(ctx, "m", FromInt(1))

	got, ok := child.Get().Lookup("m")
	if !ok {
		t.Fatalf("expected child to inherit m")
	}
	want, _ := grandparent.Get().Lookup("m")
	if !got.Equal(want) || got.Int() != 1 {
		t.Fatalf("expected inherited value 1, got %s", got.Inspect())
	}
}

// Redefining m on a closer ancestor invalidates whatever the descendant had
// already cached from the more distant one: the next lookup sees the new,
// closer definition.
func TestKlassRedefineInvalidatesDescendantCache(t *testing.T) {
	ctx := NewContext(nil)
	grandparent, parent, child := chain(t, ctx)

	grandparent.Get().Define(ctx, "m", FromInt(1))

	// Force child (and parent, along the way) to cache the grandparent's
	// entry before the redefinition happens.
	if got, ok := child.Get().Lookup("m"); !ok || got.Int() != 1 {
		t.Fatalf("expected cached lookup of 1 before redefine, got %v/%v", got, ok)
	}

	parent.Get().Define(ctx, "m", FromInt(2))

	got, ok := child.Get().Lookup("m")
	if !ok || got.Int() != 2 {
		t.Fatalf("expected redefined value 2 after parent shadowed grandparent, got %s", got.Inspect())
	}
}

// Removing m from the closer ancestor re-exposes the further ancestor's
// definition on the next lookup.
func TestKlassRemoveReexposesAncestor(t *testing.T) {
	ctx := NewContext(nil)
	grandparent, parent, child := chain(t, ctx)

	grandparent.Get().Define(ctx, "m", FromInt(1))
	parent.Get().Define(ctx, "m", FromInt(2))

	if got, ok := child.Get().Lookup("m"); !ok || got.Int() != 2 {
		t.Fatalf("expected 2 before remove, got %v/%v", got, ok)
	}

	if _, ok := parent.Get().Remove("m"); !ok {
		t.Fatalf("expected parent to own m and remove it")
	}

	got, ok := child.Get().Lookup("m")
	if !ok || got.Int() != 1 {
		t.Fatalf("expected 1 after removing parent's override, got %s", got.Inspect())
	}
}
