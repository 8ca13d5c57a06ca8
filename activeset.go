package strata

import "math"

// invalidator marks light and culling state dirty. Both data structures read
// neighbor density/light buffers, so any create/switch/destroy must cascade
// to the geometric neighbors. Re-invalidating an already-dirty instance is a
// no-op, so the cascade is idempotent.
type invalidator struct {
	index *SpatialIndex
	light LightSolver
}

func (v invalidator) instance(inst *ChunkInstance) {
	inst.LightDirty = true
	inst.CullDirty = true
	v.light.Invalidate(inst)
}

func (v invalidator) neighborsOf(c Coord) {
	for _, n := range v.index.Neighbors(c) {
		v.instance(n)
	}
}

// ActiveSetManager recomputes, every frame, which regions must render and
// which must exist, queues the rest for teardown, and applies LOD switches
// one step at a time.
type ActiveSetManager struct {
	cfg      *Config
	log      Logger
	index    *SpatialIndex
	policy   LodPolicy
	pipeline *Pipeline
	teardown *TeardownCoordinator
	inv      invalidator

	active []*ChunkInstance
}

func newActiveSetManager(cfg *Config, index *SpatialIndex, policy LodPolicy, pipeline *Pipeline, teardown *TeardownCoordinator, inv invalidator, log Logger) *ActiveSetManager {
	return &ActiveSetManager{
		cfg:      cfg,
		log:      log,
		index:    index,
		policy:   policy,
		pipeline: pipeline,
		teardown: teardown,
		inv:      inv,
	}
}

// RequiredCoords enumerates the coordinates inside the render radius around
// the camera. Horizontal mode streams the y=0 plane; spherical mode the full
// 3D neighborhood.
func (m *ActiveSetManager) RequiredCoords(cam CameraState) []Coord {
	size := float64(m.cfg.RegionSize)
	cx := int32(math.Floor(float64(cam.Position.X()) / size))
	cy := int32(math.Floor(float64(cam.Position.Y()) / size))
	cz := int32(math.Floor(float64(cam.Position.Z()) / size))
	span := int32(math.Ceil(float64(m.cfg.RenderRadius) / size))
	if span < 1 {
		span = 1
	}

	var out []Coord
	consider := func(c Coord) {
		if regionDistance(cam, c, m.cfg.RegionSize, m.cfg.DistanceMode) <= m.cfg.RenderRadius {
			out = append(out, c)
		}
	}
	if m.cfg.DistanceMode == DistanceHorizontal {
		for dz := -span; dz <= span; dz++ {
			for dx := -span; dx <= span; dx++ {
				consider(Coord{cx + dx, 0, cz + dz})
			}
		}
		return out
	}
	for dz := -span; dz <= span; dz++ {
		for dy := -span; dy <= span; dy++ {
			for dx := -span; dx <= span; dx++ {
				consider(Coord{cx + dx, cy + dy, cz + dz})
			}
		}
	}
	return out
}

// Update runs the per-frame residency pass: recompute the active and needed
// sets, queue out-of-set regions for teardown, request missing generation and
// evaluate LOD switches.
func (m *ActiveSetManager) Update(cam CameraState) {
	required := m.RequiredCoords(cam)

	needed := make(map[PositionKey]bool, len(required)*4)
	activeCoords := make(map[PositionKey]bool, len(required))
	for _, c := range required {
		activeCoords[c.Key()] = true
		needed[c.Key()] = true
		for _, n := range m.index.NeighborCoords(c) {
			needed[n.Key()] = true
		}
	}

	// Request generation for required coordinates with no resident region.
	for _, c := range required {
		region := m.index.Region(c)
		if region != nil && (len(region.lods) > 0 || len(region.generating) > 0) {
			continue
		}
		dist := regionDistance(cam, c, m.cfg.RegionSize, m.cfg.DistanceMode)
		m.pipeline.Request(c, m.policy.TargetLod(dist))
	}

	// Sweep residents: tear down what fell out of the needed set, evaluate
	// switches for the rest.
	m.active = m.active[:0]
	var doomed []*Region
	m.index.Each(func(region *Region) {
		if !needed[region.Coord.Key()] {
			doomed = append(doomed, region)
			return
		}
		if region.doomed {
			m.reviveRegion(region)
		}
		if activeCoords[region.Coord.Key()] {
			m.evaluateRegion(region, cam)
			if inst := region.ActiveInstance(); inst != nil {
				m.active = append(m.active, inst)
			}
		}
	})
	for _, region := range doomed {
		m.doomRegion(region)
	}
}

func (m *ActiveSetManager) doomRegion(region *Region) {
	m.pipeline.Abandon(region.Coord)
	if len(region.lods) == 0 {
		// Nothing ever finished generating; nothing to defer.
		m.index.Remove(region.Coord)
		return
	}
	if !region.doomed {
		region.doomed = true
		m.log.Debugf("region %v left needed set, tearing down %d lod(s)", region.Coord, len(region.lods))
	}
	m.teardown.QueueRegion(region)
}

// reviveRegion cancels a pending teardown for a region that re-entered the
// needed set before its instances were released, so a camera that briefly
// overshoots does not pay a full regeneration. Instances whose asynchronous
// unregistration already started still drain; the rest resume rendering
// untouched.
func (m *ActiveSetManager) reviveRegion(region *Region) {
	m.teardown.CancelRegion(region)
	region.doomed = false
	m.log.Debugf("region %v re-entered needed set, teardown cancelled", region.Coord)
}

// evaluateRegion applies the switching policy: at most one LOD step per frame
// per region. Upgrades require the finer instance to be ready-to-render;
// downgrades require the coarser instance to be resident — otherwise the
// current LOD keeps rendering rather than rendering nothing.
func (m *ActiveSetManager) evaluateRegion(region *Region, cam CameraState) {
	current, ok := region.ActiveLod()
	if !ok {
		return
	}
	dist := regionDistance(cam, region.Coord, m.cfg.RegionSize, m.cfg.DistanceMode)

	// Pre-emptive generation: start the next finer tier before the switch
	// threshold is crossed so it is resident by the time it is wanted.
	if finer, wanted := m.policy.ReadyForBetterLod(current, dist); wanted {
		if region.Instance(finer) == nil && !region.Generating(finer) {
			m.pipeline.Request(region.Coord, finer)
		}
	}

	if !m.policy.ShouldTransition(current, dist) {
		return
	}

	target := m.policy.TargetLod(dist)
	switch {
	case target < current:
		// One step finer, and only once that instance reports ready.
		step := current - 1
		inst := region.Instance(step)
		if inst == nil || !m.readyToRender(inst) {
			return
		}
		m.switchLod(region, step)
	case target > current:
		step := current + 1
		inst := region.Instance(step)
		if inst == nil || !inst.Ready {
			// Graceful degradation: keep rendering the current tier until
			// the coarser instance exists.
			if inst == nil && !region.Generating(step) {
				m.pipeline.Request(region.Coord, step)
			}
			return
		}
		m.switchLod(region, step)
	}
}

// readyToRender gates upgrades: the instance must have completed finalize and
// hold a valid culling result.
func (m *ActiveSetManager) readyToRender(inst *ChunkInstance) bool {
	return inst.Ready && m.pipeline.collab.Visibility.IsReady(inst)
}

func (m *ActiveSetManager) switchLod(region *Region, lod Lod) {
	region.Activate(lod)
	inst := region.Instance(lod)
	inst.PendingReady = false
	m.inv.instance(inst)
	m.inv.neighborsOf(region.Coord)
}

// Active returns the instances selected for rendering this frame. The slice
// is reused across frames.
func (m *ActiveSetManager) Active() []*ChunkInstance {
	return m.active
}
