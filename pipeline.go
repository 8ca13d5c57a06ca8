package strata

import (
	"fmt"
	"sort"
	"sync"
)

// Stage identifies where a generation task sits in the pipeline.
type Stage int

const (
	StageSampling Stage = iota
	StageUpload
	StageLightBake
	StageFinalize
)

func (s Stage) String() string {
	switch s {
	case StageSampling:
		return "sampling"
	case StageUpload:
		return "device-upload"
	case StageLightBake:
		return "light-bake"
	case StageFinalize:
		return "finalize"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// GenerationTask is the per-(coordinate, LOD) unit of pipeline work. A chunk
// key is owned by at most one task at any moment; ownership is enforced by
// the pipeline's disjoint marker sets.
type GenerationTask struct {
	Key   ChunkKey
	Coord Coord
	Lod   Lod
	Stage Stage

	// Inst is created lazily at the start of the device-upload stage.
	Inst *ChunkInstance

	// payload holds the sampler output from upload entry until the upload
	// stage releases it.
	payload *MeshPayload

	seq uint64
}

type pendingEntry struct {
	coord Coord
	lod   Lod
	key   ChunkKey
	score float32
}

type samplingResult struct {
	key     ChunkKey
	coord   Coord
	lod     Lod
	payload *MeshPayload
	err     error
}

// Pipeline drives asynchronous chunk generation. The sampling stage is
// unthrottled (bounded only by the dedup markers); the device-facing stages
// contend for command submission and advance exactly one task per frame.
type Pipeline struct {
	cfg    *Config
	log    Logger
	index  *SpatialIndex
	policy LodPolicy
	collab Collaborators
	inv    invalidator

	// Disjoint ownership markers. A key is in at most one of
	// {pending/queued, sampling, inProgress} at any time.
	pending    []pendingEntry
	queued     map[ChunkKey]bool
	sampling   map[ChunkKey]bool
	inProgress map[ChunkKey]*GenerationTask

	// throttled holds in-progress tasks in age order; requeued tasks move to
	// the back.
	throttled []*GenerationTask

	mu          sync.Mutex
	completions []samplingResult
	samplingWG  sync.WaitGroup

	nextInstanceId uint64
	nextSeq        uint64
}

func newPipeline(cfg *Config, index *SpatialIndex, policy LodPolicy, collab Collaborators, inv invalidator, log Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		log:        log,
		index:      index,
		policy:     policy,
		collab:     collab,
		inv:        inv,
		queued:     make(map[ChunkKey]bool),
		sampling:   make(map[ChunkKey]bool),
		inProgress: make(map[ChunkKey]*GenerationTask),
	}
}

// Tracked reports whether any marker set owns the key.
func (p *Pipeline) Tracked(key ChunkKey) bool {
	return p.queued[key] || p.sampling[key] || p.inProgress[key] != nil
}

// Request queues generation for (coord, lod). Duplicate requests and requests
// for already-resident instances are no-ops.
func (p *Pipeline) Request(coord Coord, lod Lod) {
	key := MakeChunkKey(coord, lod)
	if p.Tracked(key) {
		return
	}
	if p.index.Instance(coord, lod) != nil {
		return
	}
	region := p.index.Ensure(coord)
	region.generating[lod] = true
	p.queued[key] = true
	p.pending = append(p.pending, pendingEntry{coord: coord, lod: lod, key: key})
}

// Abandon clears queued and in-flight sampling work for every LOD of a
// coordinate. Sampler calls already running resolve into a no-op when they
// complete. Tasks past sampling run to completion; the teardown coordinator
// collects their instances once they land in the doomed region.
func (p *Pipeline) Abandon(coord Coord) {
	region := p.index.Region(coord)
	kept := p.pending[:0]
	for _, e := range p.pending {
		if e.coord == coord {
			delete(p.queued, e.key)
			if region != nil {
				delete(region.generating, e.lod)
			}
			continue
		}
		kept = append(kept, e)
	}
	p.pending = kept
	for lod := Lod(0); lod <= p.policy.Coarsest(); lod++ {
		key := MakeChunkKey(coord, lod)
		if p.sampling[key] {
			delete(p.sampling, key)
			if region != nil {
				delete(region.generating, lod)
			}
		}
	}
}

// LaunchSampling sorts the pending queue by generation priority and starts a
// sampler call for every entry. Sampling is not rate-limited: the sampler
// runs off the frame loop and many calls may be in flight at once.
func (p *Pipeline) LaunchSampling(cam CameraState) {
	if len(p.pending) == 0 {
		return
	}
	p.sortPending(cam)
	for _, e := range p.pending {
		delete(p.queued, e.key)
		p.sampling[e.key] = true
		neighborLods := p.index.FaceNeighborLods(e.coord, e.lod)
		p.samplingWG.Add(1)
		go p.runSampler(e.coord, e.lod, e.key, neighborLods)
	}
	p.pending = p.pending[:0]
}

func (p *Pipeline) runSampler(coord Coord, lod Lod, key ChunkKey, neighborLods [6]Lod) {
	defer p.samplingWG.Done()
	res := samplingResult{key: key, coord: coord, lod: lod}
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("sampler panic: %v", r)
			}
		}()
		res.payload, res.err = p.collab.Sampler.Sample(coord, lod, neighborLods)
	}()
	p.mu.Lock()
	p.completions = append(p.completions, res)
	p.mu.Unlock()
}

// sortPending orders new coordinates by a score that penalizes distance from
// the camera and rewards alignment with its forward vector, so regions ahead
// of and near the camera generate first. The ordering is recomputed here, not
// persisted.
func (p *Pipeline) sortPending(cam CameraState) {
	for i := range p.pending {
		e := &p.pending[i]
		center := regionCenter(e.coord, p.cfg.RegionSize)
		toRegion := center.Sub(cam.Position)
		dist := toRegion.Len()
		align := float32(0)
		if dist > 1e-3 {
			align = toRegion.Mul(1 / dist).Dot(cam.Forward)
		}
		e.score = dist*p.cfg.DistanceWeight - align*p.cfg.AlignmentWeight
	}
	sort.SliceStable(p.pending, func(i, j int) bool {
		return p.pending[i].score < p.pending[j].score
	})
}

// DrainCompletions folds finished sampler calls into the throttled pipeline.
// Failed or abandoned samples release their markers and are retryable later.
func (p *Pipeline) DrainCompletions() {
	p.mu.Lock()
	done := p.completions
	p.completions = nil
	p.mu.Unlock()

	for _, res := range done {
		if !p.sampling[res.key] {
			// Abandoned while in flight; the promise resolves into a no-op.
			continue
		}
		delete(p.sampling, res.key)
		if res.err != nil {
			p.clearGenerating(res.coord, res.lod)
			p.log.Warnf("sampling failed for %v: %v", res.key, res.err)
			continue
		}
		p.nextSeq++
		task := &GenerationTask{
			Key:     res.key,
			Coord:   res.coord,
			Lod:     res.lod,
			Stage:   StageUpload,
			payload: res.payload,
			seq:     p.nextSeq,
		}
		p.inProgress[res.key] = task
		p.throttled = append(p.throttled, task)
	}
}

// AdvanceThrottled advances exactly one throttled task by one stage. Tasks
// sitting at device-upload are preferred (they contend for device bandwidth);
// otherwise the oldest task runs. A task that needs more frames moves to the
// back of the queue; only explicit failure drops one.
func (p *Pipeline) AdvanceThrottled(cam CameraState) {
	if len(p.throttled) == 0 {
		return
	}
	pick := 0
	for i, t := range p.throttled {
		if t.Stage == StageUpload {
			pick = i
			break
		}
	}
	task := p.throttled[pick]
	p.throttled = append(p.throttled[:pick], p.throttled[pick+1:]...)

	done, err := p.runStage(task, cam)
	if err != nil {
		p.failTask(task, err)
		return
	}
	if !done {
		p.throttled = append(p.throttled, task)
		return
	}
	delete(p.inProgress, task.Key)
}

// runStage executes one stage transition, trapping panics at the task
// boundary so no single task can halt the director.
func (p *Pipeline) runStage(task *GenerationTask, cam CameraState) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done, err = false, fmt.Errorf("stage %v panic: %v", task.Stage, r)
		}
	}()

	switch task.Stage {
	case StageUpload:
		err = p.stageUpload(task)
	case StageLightBake:
		p.stageLightBake(task)
	case StageFinalize:
		p.stageFinalize(task, cam)
		done = true
	default:
		err = fmt.Errorf("task %v in invalid throttled stage %v", task.Key, task.Stage)
	}
	return done, err
}

// stageUpload creates the chunk instance, hands the payload to the device and
// registers the instance with every collaborator, then releases the payload.
func (p *Pipeline) stageUpload(task *GenerationTask) error {
	p.nextInstanceId++
	inst := &ChunkInstance{
		Id:             p.nextInstanceId,
		Coord:          task.Coord,
		Lod:            task.Lod,
		Resolution:     p.cfg.resolutionForLod(task.Lod),
		Scale:          1 << task.Lod,
		Densities:      task.payload.Densities,
		MaterialColors: task.payload.MaterialColors,
		VertexCounts:   task.payload.VertexCounts,
	}
	inst.LitColors = make([]uint32, len(task.payload.Colors))
	copy(inst.LitColors, task.payload.Colors)

	if err := p.collab.Renderer.Register(inst, task.payload); err != nil {
		return fmt.Errorf("device upload: %w", err)
	}
	p.collab.Light.Register(inst)
	p.collab.Visibility.Register(inst)

	task.Inst = inst
	task.payload = nil
	task.Stage = StageLightBake
	return nil
}

// stageLightBake runs the fixed propagation iteration count against the
// instance and its resident neighbors, then bakes the result.
func (p *Pipeline) stageLightBake(task *GenerationTask) {
	lookup := p.index.ActiveInstance
	for i := 0; i < p.cfg.LightBakeIterations; i++ {
		p.collab.Light.Update(task.Inst, lookup)
	}
	p.collab.Light.Bake(task.Inst, lookup)
	task.Stage = StageFinalize
}

// stageFinalize installs the instance into its region. A region with no
// active LOD activates immediately (a just-created region must never render
// as empty); otherwise the instance waits pending-ready for the active-set
// manager. Neighbors are invalidated — their occlusion and light samples now
// have a valid neighbor to read — and, when the camera already justifies a
// finer tier, its generation is chained immediately.
func (p *Pipeline) stageFinalize(task *GenerationTask, cam CameraState) {
	inst := task.Inst
	region := p.index.Ensure(task.Coord)
	region.SetInstance(inst)
	delete(region.generating, task.Lod)
	inst.Ready = true

	if _, ok := region.ActiveLod(); !ok {
		region.Activate(task.Lod)
	} else {
		inst.PendingReady = true
	}

	p.inv.instance(inst)
	p.inv.neighborsOf(task.Coord)

	dist := regionDistance(cam, task.Coord, p.cfg.RegionSize, p.cfg.DistanceMode)
	if finer, ok := p.policy.ReadyForBetterLod(task.Lod, dist); ok {
		p.Request(task.Coord, finer)
	}
}

// failTask isolates a stage failure: any completed install is rolled back,
// collaborator registrations are unwound, every marker is cleared and the key
// becomes re-queueable.
func (p *Pipeline) failTask(task *GenerationTask, err error) {
	delete(p.inProgress, task.Key)
	p.clearGenerating(task.Coord, task.Lod)

	if task.Inst != nil {
		// A finalize failure can land after SetInstance/Activate already ran.
		// The region must not keep rendering an instance no collaborator owns,
		// and a resident instance would block every future Request for the
		// key, so the install is withdrawn first.
		if region := p.index.Region(task.Coord); region != nil && region.Instance(task.Lod) == task.Inst {
			region.RemoveInstance(task.Lod)
		}
		p.collab.Light.Unregister(task.Inst)
		p.collab.Visibility.Unregister(task.Inst)
		p.collab.Renderer.Unregister(task.Inst)
	}
	if region := p.index.Region(task.Coord); region != nil && len(region.lods) == 0 && len(region.generating) == 0 {
		p.index.Remove(task.Coord)
	}
	p.log.Errorf("%v", &TransientError{Key: task.Key, Err: err})
}

func (p *Pipeline) clearGenerating(coord Coord, lod Lod) {
	if region := p.index.Region(coord); region != nil {
		delete(region.generating, lod)
	}
}

// QueueDepths reports (pending, sampling, throttled) sizes for diagnostics.
func (p *Pipeline) QueueDepths() (int, int, int) {
	return len(p.pending), len(p.sampling), len(p.throttled)
}

// waitSampling blocks until every in-flight sampler call has delivered its
// result. Test hook; the frame loop never blocks on it.
func (p *Pipeline) waitSampling() {
	p.samplingWG.Wait()
}
