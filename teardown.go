package strata

// teardownPhase sequences an instance's destruction.
type teardownPhase int

const (
	// phaseDeferred: queued this frame; must not release anything until the
	// frame's device submission has happened.
	phaseDeferred teardownPhase = iota
	// phaseUnregistering: lighting is detached and the asynchronous culling
	// unregistration is in flight.
	phaseUnregistering
)

type teardownEntry struct {
	inst  *ChunkInstance
	phase teardownPhase
	op    AsyncOp
}

// TeardownCoordinator defers and sequences chunk destruction. Buffers are
// released only after the frame's device commands have been submitted and
// every outstanding asynchronous read against the instance has completed —
// releasing a resource with a readback in flight is undefined behavior.
type TeardownCoordinator struct {
	cfg    *Config
	log    Logger
	index  *SpatialIndex
	collab Collaborators
	inv    invalidator

	entries []*teardownEntry
	queuedK map[ChunkKey]bool
}

func newTeardownCoordinator(cfg *Config, index *SpatialIndex, collab Collaborators, inv invalidator, log Logger) *TeardownCoordinator {
	return &TeardownCoordinator{
		cfg:     cfg,
		log:     log,
		index:   index,
		collab:  collab,
		inv:     inv,
		queuedK: make(map[ChunkKey]bool),
	}
}

// QueueInstance marks one instance for deferred destruction. Idempotent.
func (t *TeardownCoordinator) QueueInstance(inst *ChunkInstance) {
	key := inst.Key()
	if t.queuedK[key] {
		return
	}
	t.queuedK[key] = true
	t.entries = append(t.entries, &teardownEntry{inst: inst})
}

// QueueRegion marks every resident LOD instance of a region.
func (t *TeardownCoordinator) QueueRegion(region *Region) {
	for _, inst := range region.lods {
		t.QueueInstance(inst)
	}
}

// CancelRegion withdraws entries for a region's instances that are still in
// the deferred phase. Entries whose asynchronous unregistration already
// started cannot be withdrawn and drain normally.
func (t *TeardownCoordinator) CancelRegion(region *Region) {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.phase == phaseDeferred && e.inst.Coord == region.Coord {
			delete(t.queuedK, e.inst.Key())
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
}

// Pending reports how many instances are awaiting destruction.
func (t *TeardownCoordinator) Pending() int {
	return len(t.entries)
}

// Flush advances the teardown state machine. It must be called after the
// frame's device submission, so in-flight GPU references stay valid through
// the frame that queued the instance.
func (t *TeardownCoordinator) Flush() {
	kept := t.entries[:0]
	for _, e := range t.entries {
		switch e.phase {
		case phaseDeferred:
			// The frame that queued this entry has been submitted; detach
			// lighting and start the asynchronous culling unregistration.
			t.collab.Light.Unregister(e.inst)
			e.op = t.collab.Visibility.Unregister(e.inst)
			e.phase = phaseUnregistering
			kept = append(kept, e)
		case phaseUnregistering:
			if !e.op.Done() || t.collab.Visibility.ReadbackPending(e.inst) {
				// An asynchronous read still references the buffers; try
				// again next frame.
				kept = append(kept, e)
				continue
			}
			t.destroy(e.inst)
		}
	}
	t.entries = kept
}

// destroy releases the device buffers and removes the instance from its
// region. Former neighbors are invalidated — they may have been sampling this
// instance's light and density. If the instance was the region's active LOD,
// the finest remaining LOD takes over; an emptied region leaves the index.
func (t *TeardownCoordinator) destroy(inst *ChunkInstance) {
	t.collab.Renderer.Unregister(inst)
	delete(t.queuedK, inst.Key())

	t.inv.neighborsOf(inst.Coord)

	region := t.index.Region(inst.Coord)
	if region == nil {
		return
	}
	wasActive := false
	if l, ok := region.ActiveLod(); ok && l == inst.Lod {
		wasActive = true
	}
	empty := region.RemoveInstance(inst.Lod)
	if wasActive {
		if l, ok := region.ActiveLod(); ok {
			t.log.Debugf("region %v active lod fell back to %d", region.Coord, l)
		}
	}
	if empty && len(region.generating) == 0 {
		t.index.Remove(region.Coord)
	}
}
