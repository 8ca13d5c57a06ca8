package strata

import (
	"fmt"
	"sync"
)

// Test doubles for the four collaborator contracts. They record calls and let
// tests fail or stall specific operations.

type fakeSampler struct {
	mu    sync.Mutex
	calls []ChunkKey
	fail  map[ChunkKey]error
}

func newFakeSampler() *fakeSampler {
	return &fakeSampler{fail: make(map[ChunkKey]error)}
}

func (s *fakeSampler) Sample(coord Coord, lod Lod, neighborLods [6]Lod) (*MeshPayload, error) {
	key := MakeChunkKey(coord, lod)
	s.mu.Lock()
	s.calls = append(s.calls, key)
	err := s.fail[key]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &MeshPayload{
		Vertices:       []float32{0, 0, 0, 1},
		Normals:        []float32{0, 1, 0, 0},
		Colors:         []uint32{0xFFFFFFFF},
		MaterialColors: []uint32{0xFFFFFFFF},
		Commands:       []uint32{3, 1, 0, 0, 0},
		Densities:      []uint32{128},
		VertexCounts:   []uint32{3},
		Indices:        []uint32{0, 1, 2},
	}, nil
}

func (s *fakeSampler) sampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeLight struct {
	registered  map[uint64]bool
	updates     int
	bakes       int
	invalidated int

	// panicInvalidate makes Invalidate panic, to exercise failure isolation.
	panicInvalidate bool
}

func newFakeLight() *fakeLight {
	return &fakeLight{registered: make(map[uint64]bool)}
}

func (l *fakeLight) Register(inst *ChunkInstance)   { l.registered[inst.Id] = true }
func (l *fakeLight) Unregister(inst *ChunkInstance) { delete(l.registered, inst.Id) }
func (l *fakeLight) Update(inst *ChunkInstance, neighbors NeighborLookup) {
	l.updates++
}
func (l *fakeLight) Bake(inst *ChunkInstance, neighbors NeighborLookup) {
	l.bakes++
}
func (l *fakeLight) Invalidate(inst *ChunkInstance) {
	if l.panicInvalidate {
		panic("light state corrupt")
	}
	l.invalidated++
}

type manualOp struct {
	done bool
}

func (o *manualOp) Done() bool { return o.done }

type fakeVisibility struct {
	registered map[uint64]bool
	ready      map[uint64]bool
	pending    map[uint64]bool
	ops        map[uint64]*manualOp
	updates    int

	// asyncUnregister makes Unregister return a manually completed op instead
	// of finishing immediately.
	asyncUnregister bool
	// readyByDefault marks instances ready-to-render as soon as they register.
	readyByDefault bool
}

func newFakeVisibility() *fakeVisibility {
	return &fakeVisibility{
		registered:     make(map[uint64]bool),
		ready:          make(map[uint64]bool),
		pending:        make(map[uint64]bool),
		ops:            make(map[uint64]*manualOp),
		readyByDefault: true,
	}
}

func (v *fakeVisibility) Register(inst *ChunkInstance) {
	v.registered[inst.Id] = true
	if v.readyByDefault {
		v.ready[inst.Id] = true
	}
}

func (v *fakeVisibility) Unregister(inst *ChunkInstance) AsyncOp {
	delete(v.registered, inst.Id)
	if !v.asyncUnregister {
		return CompletedOp()
	}
	op := &manualOp{}
	v.ops[inst.Id] = op
	return op
}

func (v *fakeVisibility) Update(inst *ChunkInstance, neighbors NeighborLookup) {
	v.updates++
}

func (v *fakeVisibility) IsReady(inst *ChunkInstance) bool {
	return v.ready[inst.Id]
}

func (v *fakeVisibility) ReadbackPending(inst *ChunkInstance) bool {
	return v.pending[inst.Id]
}

type fakeRenderer struct {
	registered map[uint64]*ChunkInstance
	order      []Coord
	updates    int

	// failNext makes the next Register call fail once.
	failNext error
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{registered: make(map[uint64]*ChunkInstance)}
}

func (r *fakeRenderer) Register(inst *ChunkInstance, payload *MeshPayload) error {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if payload == nil {
		return fmt.Errorf("nil payload for %v", inst.Coord)
	}
	r.registered[inst.Id] = inst
	r.order = append(r.order, inst.Coord)
	return nil
}

func (r *fakeRenderer) Unregister(inst *ChunkInstance) {
	delete(r.registered, inst.Id)
}

func (r *fakeRenderer) Update(active []*ChunkInstance) {
	r.updates++
}

// testConfig is small enough that a 3x3 horizontal neighborhood streams in.
func testConfig() *Config {
	return &Config{
		RegionSize:          16,
		BaseResolution:      16,
		RenderRadius:        24,
		DistanceMode:        DistanceHorizontal,
		LodThresholds:       []float32{16, 32},
		HysteresisMargin:    4,
		Connectivity:        6,
		LightBakeIterations: 2,
		ReadbackInterval:    1,
		DistanceWeight:      1,
		AlignmentWeight:     8,
	}
}

type testRig struct {
	director *Director
	sampler  *fakeSampler
	light    *fakeLight
	vis      *fakeVisibility
	renderer *fakeRenderer
}

func newTestRig(cfg *Config) *testRig {
	rig := &testRig{
		sampler:  newFakeSampler(),
		light:    newFakeLight(),
		vis:      newFakeVisibility(),
		renderer: newFakeRenderer(),
	}
	d, err := NewDirector(cfg, Collaborators{
		Sampler:    rig.sampler,
		Light:      rig.light,
		Visibility: rig.vis,
		Renderer:   rig.renderer,
	}, NewNopLogger())
	if err != nil {
		panic(err)
	}
	rig.director = d
	return rig
}

// step runs one frame and then waits for all sampler goroutines it launched,
// so the next frame's drain sees every completion.
func (rig *testRig) step(cam CameraState) {
	rig.director.Step(cam)
	rig.director.pipeline.waitSampling()
}

// settle steps until the director reaches a fixed point or maxFrames passes.
func (rig *testRig) settle(cam CameraState, maxFrames int) {
	for i := 0; i < maxFrames; i++ {
		rig.step(cam)
	}
}
