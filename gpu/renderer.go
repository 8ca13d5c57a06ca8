package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/strata3d/strata"
)

// Renderer keeps one device buffer set per registered chunk instance and
// performs the per-frame submission. It implements strata.Renderer.
type Renderer struct {
	device *wgpu.Device
	log    strata.Logger

	sets map[uint64]*chunkBuffers
}

func NewRenderer(device *wgpu.Device, log strata.Logger) *Renderer {
	if log == nil {
		log = strata.NewNopLogger()
	}
	return &Renderer{
		device: device,
		log:    log,
		sets:   make(map[uint64]*chunkBuffers),
	}
}

// Register uploads a freshly sampled payload into a new buffer set for the
// instance. A capacity failure is returned to the pipeline untouched so the
// task can fail loudly; no partial buffer set survives it.
func (r *Renderer) Register(inst *strata.ChunkInstance, payload *strata.MeshPayload) error {
	if _, exists := r.sets[inst.Id]; exists {
		return fmt.Errorf("instance %d registered twice", inst.Id)
	}
	set := newChunkBuffers(inst)
	if err := set.upload(r.device, payload); err != nil {
		set.release()
		return err
	}
	r.sets[inst.Id] = set
	r.log.Debugf("uploaded %v lod %d (%d verts, %d meshlets)",
		inst.Coord, inst.Lod, len(payload.Vertices)/4, len(payload.VertexCounts))
	return nil
}

// Unregister releases the instance's buffer set. The teardown coordinator
// calls this last, after all asynchronous reads have drained.
func (r *Renderer) Unregister(inst *strata.ChunkInstance) {
	set, ok := r.sets[inst.Id]
	if !ok {
		return
	}
	set.release()
	delete(r.sets, inst.Id)
}

// Update is the frame submission: re-upload baked colors for instances the
// light solver dirtied, then submit the frame's command stream.
func (r *Renderer) Update(active []*strata.ChunkInstance) {
	for _, inst := range active {
		if !inst.ColorsDirty {
			continue
		}
		set, ok := r.sets[inst.Id]
		if !ok || set.colors == nil {
			continue
		}
		r.device.GetQueue().WriteBuffer(set.colors, 0, wgpu.ToBytes(inst.LitColors))
		inst.ColorsDirty = false
	}

	encoder, err := r.device.CreateCommandEncoder(nil)
	if err != nil {
		r.log.Errorf("frame command encoder: %v", err)
		return
	}
	defer encoder.Release()
	cmd, err := encoder.Finish(nil)
	if err != nil {
		r.log.Errorf("frame encoder finish: %v", err)
		return
	}
	r.device.GetQueue().Submit(cmd)
}

// Buffers returns the device buffer set for an instance, or nil. The
// visibility solver uses it to source readback copies.
func (r *Renderer) Buffers(inst *strata.ChunkInstance) *chunkBuffers {
	return r.sets[inst.Id]
}

// Resident reports how many buffer sets are currently on the device.
func (r *Renderer) Resident() int {
	return len(r.sets)
}
