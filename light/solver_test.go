package light

import (
	"testing"

	"github.com/strata3d/strata"
)

func testInstance(id uint64, c strata.Coord, densities []uint32) *strata.ChunkInstance {
	colors := make([]uint32, len(densities))
	for i := range colors {
		colors[i] = 0xFF0000FF // opaque red
	}
	return &strata.ChunkInstance{
		Id:             id,
		Coord:          c,
		Densities:      densities,
		MaterialColors: colors,
	}
}

func noNeighbors(strata.Coord) *strata.ChunkInstance { return nil }

func TestBakeModulatesMaterialColors(t *testing.T) {
	s := NewSolver(nil)
	inst := testInstance(1, strata.Coord{}, []uint32{0, 255})
	s.Register(inst)
	s.Update(inst, noNeighbors)
	s.Bake(inst, noNeighbors)

	if len(inst.LitColors) != 2 {
		t.Fatalf("lit colors len %d", len(inst.LitColors))
	}
	open, dense := inst.LitColors[0], inst.LitColors[1]
	if open&0xFF <= dense&0xFF {
		t.Errorf("open meshlet (%#x) not brighter than dense one (%#x)", open, dense)
	}
	if dense&0xFF == 0 {
		t.Error("dense meshlet baked to pure black")
	}
	if open&0xFF000000 != 0xFF000000 {
		t.Error("alpha channel not preserved")
	}
	if !inst.ColorsDirty {
		t.Error("bake did not flag a color re-upload")
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	s := NewSolver(nil)
	inst := testInstance(1, strata.Coord{}, []uint32{0})
	s.Register(inst)
	s.Update(inst, noNeighbors)
	s.Bake(inst, noNeighbors)
	baked := append([]uint32(nil), inst.LitColors...)

	// Settled field: further updates are no-ops.
	s.Update(inst, noNeighbors)
	s.Bake(inst, noNeighbors)
	for i, c := range inst.LitColors {
		if c != baked[i] {
			t.Fatalf("settled field changed on re-bake at %d", i)
		}
	}

	s.Invalidate(inst)
	s.Invalidate(inst)
	s.Update(inst, noNeighbors)
	s.Bake(inst, noNeighbors)
}

func TestNeighborEnergyBleedsIn(t *testing.T) {
	s := NewSolver(nil)

	// A dense instance next to a fully lit neighbor should bake brighter than
	// the same instance alone.
	alone := testInstance(1, strata.Coord{X: 10}, []uint32{200})
	s.Register(alone)
	s.Update(alone, noNeighbors)
	s.Bake(alone, noNeighbors)

	lit := testInstance(2, strata.Coord{}, []uint32{0, 0, 0, 0})
	shaded := testInstance(3, strata.Coord{X: 1}, []uint32{200})
	s.Register(lit)
	s.Register(shaded)
	lookup := func(c strata.Coord) *strata.ChunkInstance {
		if c == lit.Coord {
			return lit
		}
		return nil
	}
	for i := 0; i < 8; i++ {
		s.Update(shaded, lookup)
	}
	s.Bake(shaded, lookup)

	if shaded.LitColors[0]&0xFF <= alone.LitColors[0]&0xFF {
		t.Errorf("neighbor light did not bleed in: with=%#x alone=%#x",
			shaded.LitColors[0], alone.LitColors[0])
	}
}

func TestUnregisterDropsField(t *testing.T) {
	s := NewSolver(nil)
	inst := testInstance(1, strata.Coord{}, []uint32{0})
	s.Register(inst)
	if s.Fields() != 1 {
		t.Fatalf("fields = %d", s.Fields())
	}
	s.Unregister(inst)
	if s.Fields() != 0 {
		t.Fatalf("fields after unregister = %d", s.Fields())
	}
	// Operations on unknown instances are no-ops, not panics.
	s.Update(inst, noNeighbors)
	s.Bake(inst, noNeighbors)
	s.Invalidate(inst)
}
