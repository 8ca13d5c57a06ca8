package gpu

import (
	"encoding/binary"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/strata3d/strata"
)

// readbackState tracks one instance's asynchronous visible-index readback.
// The transitions are strictly idle -> copying -> mapping -> mapped -> idle;
// only idle entries may start a new readback or finish unregistering.
type readbackState int

const (
	readbackIdle readbackState = iota
	readbackCopying
	readbackMapping
	readbackMapped
)

type visEntry struct {
	inst     *strata.ChunkInstance
	state    readbackState
	readback *wgpu.Buffer

	// visible holds meshlet indices with a nonzero vertex count from the last
	// completed readback. rerun records an Update that arrived mid-flight.
	visible []uint32
	rerun   bool

	unregistered bool
}

// Visibility computes per-instance visible meshlet indices by copying the
// device-side vertex-count buffer into a mappable readback buffer and parsing
// it when the map completes. It implements strata.VisibilitySolver.
//
// The MapAsync callback fires during device polling, possibly off the frame
// goroutine, so all entry state is guarded by one mutex.
type Visibility struct {
	device   *wgpu.Device
	renderer *Renderer
	log      strata.Logger

	mu      sync.Mutex
	entries map[uint64]*visEntry
}

func NewVisibility(device *wgpu.Device, renderer *Renderer, log strata.Logger) *Visibility {
	if log == nil {
		log = strata.NewNopLogger()
	}
	return &Visibility{
		device:   device,
		renderer: renderer,
		log:      log,
		entries:  make(map[uint64]*visEntry),
	}
}

func (v *Visibility) Register(inst *strata.ChunkInstance) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.entries[inst.Id]; ok {
		return
	}
	v.entries[inst.Id] = &visEntry{inst: inst}
}

// Update starts a readback for the instance. If one is already in flight the
// request is remembered and re-issued once the current one lands, so a dirty
// instance never loses its refresh.
func (v *Visibility) Update(inst *strata.ChunkInstance, neighbors strata.NeighborLookup) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[inst.Id]
	if !ok || e.unregistered {
		return
	}
	if e.state != readbackIdle {
		e.rerun = true
		return
	}
	v.startReadback(e)
}

// startReadback issues the copy and chains the asynchronous map. Caller holds
// v.mu.
func (v *Visibility) startReadback(e *visEntry) {
	set := v.renderer.Buffers(e.inst)
	if set == nil || set.vertexCounts == nil {
		return
	}
	size := set.vertexCounts.GetSize()
	if size == 0 {
		return
	}

	if e.readback == nil || e.readback.GetSize() < size {
		if e.readback != nil {
			e.readback.Release()
		}
		buf, err := v.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: set.label + "/readback",
			Size:  size,
			Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
		})
		if err != nil {
			v.log.Errorf("visibility readback buffer for %v: %v", e.inst.Coord, err)
			return
		}
		e.readback = buf
	}

	encoder, err := v.device.CreateCommandEncoder(nil)
	if err != nil {
		v.log.Errorf("visibility command encoder for %v: %v", e.inst.Coord, err)
		return
	}
	defer encoder.Release()
	e.state = readbackCopying
	encoder.CopyBufferToBuffer(set.vertexCounts, 0, e.readback, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		v.log.Errorf("visibility copy encoder for %v: %v", e.inst.Coord, err)
		e.state = readbackIdle
		return
	}
	v.device.GetQueue().Submit(cmd)

	e.state = readbackMapping
	buf := e.readback
	e.readback.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		v.onMapped(e, buf, size, status)
	})
}

// onMapped runs inside device polling. It parses the vertex counts into
// visible meshlet indices, unmaps, and returns the entry to idle.
func (v *Visibility) onMapped(e *visEntry, buf *wgpu.Buffer, size uint64, status wgpu.BufferMapAsyncStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if status != wgpu.BufferMapAsyncStatusSuccess {
		v.log.Warnf("visibility map for %v failed: %v", e.inst.Coord, status)
		e.state = readbackIdle
		return
	}
	e.state = readbackMapped

	data := buf.GetMappedRange(0, uint(size))
	e.visible = e.visible[:0]
	for i := 0; i+4 <= len(data); i += 4 {
		if binary.LittleEndian.Uint32(data[i:i+4]) > 0 {
			e.visible = append(e.visible, uint32(i/4))
		}
	}
	buf.Unmap()
	e.state = readbackIdle

	if e.rerun && !e.unregistered {
		e.rerun = false
		v.startReadback(e)
	}
}

// IsReady reports whether the instance has a valid, non-empty visible-index
// result. Upgrades gate on this so a chunk never becomes active with nothing
// to draw.
func (v *Visibility) IsReady(inst *strata.ChunkInstance) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[inst.Id]
	return ok && len(e.visible) > 0
}

// ReadbackPending reports whether a readback for the instance is in flight.
func (v *Visibility) ReadbackPending(inst *strata.ChunkInstance) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[inst.Id]
	return ok && e.state != readbackIdle
}

// Visible returns the last completed visible meshlet indices for an instance.
func (v *Visibility) Visible(inst *strata.ChunkInstance) []uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[inst.Id]
	if !ok {
		return nil
	}
	out := make([]uint32, len(e.visible))
	copy(out, e.visible)
	return out
}

// Unregister stops new readbacks for the instance and returns an op that
// completes once the in-flight one (if any) has landed. The entry and its
// readback buffer are released when the op first reports done.
func (v *Visibility) Unregister(inst *strata.ChunkInstance) strata.AsyncOp {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[inst.Id]
	if !ok {
		return strata.CompletedOp()
	}
	e.unregistered = true
	e.rerun = false
	return &unregisterOp{v: v, id: inst.Id}
}

type unregisterOp struct {
	v  *Visibility
	id uint64
}

func (op *unregisterOp) Done() bool {
	op.v.mu.Lock()
	defer op.v.mu.Unlock()
	e, ok := op.v.entries[op.id]
	if !ok {
		return true
	}
	if e.state != readbackIdle {
		return false
	}
	if e.readback != nil {
		e.readback.Release()
		e.readback = nil
	}
	delete(op.v.entries, op.id)
	return true
}
