package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"

	"github.com/strata3d/strata"
)

const (
	// headroom added when growing a chunk buffer, so small geometry changes
	// after a re-sample do not force a reallocation every time.
	headroomBytes = 256 * 1024

	// maxBufferBytes is the hard per-buffer ceiling; past this, growth fails
	// with strata.ErrCapacity instead of asking the device for the moon.
	maxBufferBytes = 512 * 1024 * 1024
)

// chunkBuffers is the device-resident storage for one chunk instance,
// mirroring the sampled payload layout. Consumers re-resolve buffers through
// the renderer on every use, so a resize never leaves a stale reference.
type chunkBuffers struct {
	label string

	vertices       *wgpu.Buffer
	normals        *wgpu.Buffer
	colors         *wgpu.Buffer
	materialColors *wgpu.Buffer
	commands       *wgpu.Buffer
	densities      *wgpu.Buffer
	vertexCounts   *wgpu.Buffer
	indices        *wgpu.Buffer
}

func newChunkBuffers(inst *strata.ChunkInstance) *chunkBuffers {
	return &chunkBuffers{
		label: fmt.Sprintf("chunk-%v-lod%d-%s", inst.Coord, inst.Lod, uuid.NewString()),
	}
}

// ensureBuffer grows (never shrinks) a buffer to fit data plus headroom and
// writes the data.
func ensureBuffer(device *wgpu.Device, label string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage) error {
	needed := uint64(len(data))
	if needed%4 != 0 {
		needed += 4 - needed%4
	}

	current := *buf
	if current != nil && current.GetSize() >= needed {
		if len(data) > 0 {
			device.GetQueue().WriteBuffer(current, 0, data)
		}
		return nil
	}

	needed += headroomBytes
	if needed > maxBufferBytes {
		return fmt.Errorf("%s needs %d bytes: %w", label, needed, strata.ErrCapacity)
	}
	if current != nil {
		current.Release()
		*buf = nil
	}
	newBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  needed,
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", label, err)
	}
	*buf = newBuf
	if len(data) > 0 {
		device.GetQueue().WriteBuffer(newBuf, 0, data)
	}
	return nil
}

// upload pushes a full payload into the buffer set, growing as needed.
func (b *chunkBuffers) upload(device *wgpu.Device, payload *strata.MeshPayload) error {
	storage := wgpu.BufferUsageStorage
	parts := []struct {
		name  string
		buf   **wgpu.Buffer
		data  []byte
		usage wgpu.BufferUsage
	}{
		{"vertices", &b.vertices, wgpu.ToBytes(payload.Vertices), storage},
		{"normals", &b.normals, wgpu.ToBytes(payload.Normals), storage},
		{"colors", &b.colors, wgpu.ToBytes(payload.Colors), storage},
		{"materialColors", &b.materialColors, wgpu.ToBytes(payload.MaterialColors), storage},
		{"commands", &b.commands, wgpu.ToBytes(payload.Commands), storage | wgpu.BufferUsageIndirect},
		{"densities", &b.densities, wgpu.ToBytes(payload.Densities), storage},
		{"vertexCounts", &b.vertexCounts, wgpu.ToBytes(payload.VertexCounts), storage | wgpu.BufferUsageCopySrc},
		{"indices", &b.indices, wgpu.ToBytes(payload.Indices), storage | wgpu.BufferUsageIndex},
	}
	for _, p := range parts {
		if err := ensureBuffer(device, b.label+"/"+p.name, p.buf, p.data, p.usage); err != nil {
			return err
		}
	}
	return nil
}

func (b *chunkBuffers) release() {
	for _, buf := range []*wgpu.Buffer{
		b.vertices, b.normals, b.colors, b.materialColors,
		b.commands, b.densities, b.vertexCounts, b.indices,
	} {
		if buf != nil {
			buf.Release()
		}
	}
	b.vertices, b.normals, b.colors, b.materialColors = nil, nil, nil, nil
	b.commands, b.densities, b.vertexCounts, b.indices = nil, nil, nil, nil
}
