package strata

// Director is the streaming scheduler: every frame it decides which regions
// must exist and at what detail, drives their asynchronous generation,
// arbitrates device contention and sequences safe teardown. It is driven by a
// single-threaded cooperative frame loop; Step never blocks.
type Director struct {
	cfg    *Config
	log    Logger
	collab Collaborators

	index    *SpatialIndex
	policy   LodPolicy
	pipeline *Pipeline
	active   *ActiveSetManager
	teardown *TeardownCoordinator

	frame uint64
}

// NewDirector validates the configuration and collaborator wiring. A missing
// collaborator is a PreconditionError: fatal here, never discovered
// mid-frame.
func NewDirector(cfg *Config, collab Collaborators, log Logger) (*Director, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if collab.Sampler == nil {
		return nil, preconditionf("terrain sampler not wired")
	}
	if collab.Light == nil {
		return nil, preconditionf("light solver not wired")
	}
	if collab.Visibility == nil {
		return nil, preconditionf("visibility solver not wired")
	}
	if collab.Renderer == nil {
		return nil, preconditionf("renderer not wired")
	}
	if log == nil {
		log = NewNopLogger()
	}

	index := NewSpatialIndex(cfg.Connectivity)
	policy := LodPolicy{Thresholds: cfg.LodThresholds, Margin: cfg.HysteresisMargin}
	inv := invalidator{index: index, light: collab.Light}
	pipeline := newPipeline(cfg, index, policy, collab, inv, log)
	teardown := newTeardownCoordinator(cfg, index, collab, inv, log)
	activeMgr := newActiveSetManager(cfg, index, policy, pipeline, teardown, inv, log)

	return &Director{
		cfg:      cfg,
		log:      log,
		collab:   collab,
		index:    index,
		policy:   policy,
		pipeline: pipeline,
		active:   activeMgr,
		teardown: teardown,
	}, nil
}

// Init seeds the pending-coordinate queue from the camera's starting
// position. Nothing is launched until the first Step.
func (d *Director) Init(cam CameraState) {
	for _, c := range d.active.RequiredCoords(cam) {
		dist := regionDistance(cam, c, d.cfg.RegionSize, d.cfg.DistanceMode)
		d.pipeline.Request(c, d.policy.TargetLod(dist))
	}
	pending, _, _ := d.pipeline.QueueDepths()
	d.log.Infof("seeded %d region(s) around %v", pending, cam.Position)
}

// Step runs one frame of the director. Per-task failures never escape it.
func (d *Director) Step(cam CameraState) {
	// Fold in sampler results that completed since last frame.
	d.pipeline.DrainCompletions()

	// Residency, teardown queuing and LOD switching.
	d.active.Update(cam)

	// One throttled pipeline step, then launch fresh sampling unthrottled.
	d.pipeline.AdvanceThrottled(cam)
	d.pipeline.LaunchSampling(cam)

	// Hand region data to the collaborators.
	d.refreshCollaborators()

	// Frame device submission, then the post-submit teardown flush.
	d.collab.Renderer.Update(d.active.Active())
	d.teardown.Flush()

	d.frame++
}

// refreshCollaborators re-runs light propagation for dirty instances every
// frame and visibility updates on the readback time-slice, so readbacks never
// pile onto the submission pipeline.
func (d *Director) refreshCollaborators() {
	lookup := d.index.ActiveInstance
	cullSlice := d.frame%uint64(d.cfg.ReadbackInterval) == 0
	for _, inst := range d.active.Active() {
		if inst.LightDirty {
			d.collab.Light.Update(inst, lookup)
			d.collab.Light.Bake(inst, lookup)
			inst.LightDirty = false
		}
		if cullSlice && inst.CullDirty {
			d.collab.Visibility.Update(inst, lookup)
			inst.CullDirty = false
		}
	}
}

// Frame is the number of completed steps.
func (d *Director) Frame() uint64 {
	return d.frame
}

// Index exposes the region registry for read-only inspection.
func (d *Director) Index() *SpatialIndex {
	return d.index
}

// Stats summarizes scheduler load for overlays and logs.
type Stats struct {
	Regions   int
	Active    int
	Pending   int
	Sampling  int
	Throttled int
	Teardown  int
}

func (d *Director) Stats() Stats {
	pending, sampling, throttled := d.pipeline.QueueDepths()
	return Stats{
		Regions:   d.index.Len(),
		Active:    len(d.active.Active()),
		Pending:   pending,
		Sampling:  sampling,
		Throttled: throttled,
		Teardown:  d.teardown.Pending(),
	}
}
