package strata

import (
	"testing"
)

func TestTeardownWaitsForAsyncUnregister(t *testing.T) {
	rig := newTestRig(testConfig())
	rig.vis.asyncUnregister = true
	p := rig.director.pipeline
	td := rig.director.teardown
	c := Coord{0, 0, 0}

	inst := buildInstance(p, c, 1)
	td.QueueInstance(inst)
	td.QueueInstance(inst) // idempotent
	if td.Pending() != 1 {
		t.Fatalf("duplicate queue entries: %d", td.Pending())
	}

	// First flush: lighting detaches, the async unregister starts, nothing is
	// released yet.
	td.Flush()
	if len(rig.light.registered) != 0 {
		t.Fatal("light not unregistered on first flush")
	}
	if len(rig.renderer.registered) == 0 {
		t.Fatal("buffers released before the unregister completed")
	}

	// The op is still in flight.
	td.Flush()
	if len(rig.renderer.registered) == 0 {
		t.Fatal("buffers released with the unregister still in flight")
	}

	// Op done, but a readback still references the buffers.
	rig.vis.ops[inst.Id].done = true
	rig.vis.pending[inst.Id] = true
	td.Flush()
	if len(rig.renderer.registered) == 0 {
		t.Fatal("buffers released with a readback pending")
	}

	rig.vis.pending[inst.Id] = false
	td.Flush()
	if len(rig.renderer.registered) != 0 {
		t.Fatal("buffers not released once all async work drained")
	}
	if td.Pending() != 0 {
		t.Fatalf("entries left after destruction: %d", td.Pending())
	}
	if p.index.Region(c) != nil {
		t.Fatal("emptied region not removed from the index")
	}
}

func TestTeardownActiveLodFailsOverToFinest(t *testing.T) {
	rig := newTestRig(testConfig())
	p := rig.director.pipeline
	td := rig.director.teardown
	c := Coord{0, 0, 0}

	buildInstance(p, c, 2)
	fine := buildInstance(p, c, 1)
	region := p.index.Region(c)
	region.Activate(1)

	td.QueueInstance(fine)
	td.Flush()
	td.Flush()

	lod, ok := region.ActiveLod()
	if !ok || lod != 2 {
		t.Fatalf("active lod did not fail over: lod=%d ok=%v", lod, ok)
	}
	if p.index.Region(c) == nil {
		t.Fatal("region with a remaining lod was removed")
	}
}

func TestTeardownInvalidatesFormerNeighbors(t *testing.T) {
	rig := newTestRig(testConfig())
	p := rig.director.pipeline
	td := rig.director.teardown
	c := Coord{0, 0, 0}

	neighbor := buildInstance(p, Coord{1, 0, 0}, 1)
	inst := buildInstance(p, c, 1)

	neighbor.LightDirty = false
	neighbor.CullDirty = false
	td.QueueInstance(inst)
	td.Flush()
	td.Flush()

	if !neighbor.LightDirty || !neighbor.CullDirty {
		t.Fatal("former neighbor not invalidated by destruction")
	}
}

func TestTeardownHoldsWhileGenerating(t *testing.T) {
	rig := newTestRig(testConfig())
	p := rig.director.pipeline
	td := rig.director.teardown
	c := Coord{0, 0, 0}

	inst := buildInstance(p, c, 1)
	region := p.index.Region(c)
	region.generating[0] = true

	td.QueueInstance(inst)
	td.Flush()
	td.Flush()

	// The last instance is gone but a task is still mid-pipeline for the
	// coordinate; the region record must survive to receive it.
	if p.index.Region(c) == nil {
		t.Fatal("region removed while a lod was still generating")
	}
}
