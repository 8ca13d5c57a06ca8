package strata

// DrawCommandWords is the number of uint32 words per indirect draw command in
// a sampled payload (vertexCount, instanceCount, firstVertex, firstInstance,
// plus the indexed-draw base field).
const DrawCommandWords = 5

// MeshPayload is the raw surface geometry produced by the terrain sampler for
// one (coordinate, LOD) pair. Vertices and normals are packed as vec4 floats;
// the remaining arrays are one entry (or DrawCommandWords entries, for
// Commands) per meshlet.
type MeshPayload struct {
	Vertices       []float32
	Normals        []float32
	Colors         []uint32
	MaterialColors []uint32
	Commands       []uint32
	Densities      []uint32
	VertexCounts   []uint32
	Indices        []uint32
}

// ChunkInstance is one generated rendition of a region at a specific LOD.
// Instances are created by the generation pipeline at the device-upload stage
// and destroyed only through the teardown coordinator.
type ChunkInstance struct {
	Id    uint64 // monotonic, unique per director
	Coord Coord
	Lod   Lod

	// Resolution is the voxel grid edge length sampled for this LOD; Scale is
	// the world-space size of one of its cells.
	Resolution int32
	Scale      int32

	// Host-visible views retained past the upload stage. Densities feed
	// neighbor light propagation; LitColors is the light solver's bake target.
	Densities      []uint32
	MaterialColors []uint32
	VertexCounts   []uint32
	LitColors      []uint32

	// Ready is set when the instance has completed finalize. PendingReady
	// marks a finalized instance the active-set manager has not switched to
	// yet. ColorsDirty tells the renderer to re-upload LitColors.
	Ready        bool
	PendingReady bool
	ColorsDirty  bool

	// Invalidation flags, idempotent by construction: re-dirtying a dirty
	// instance is a no-op.
	LightDirty bool
	CullDirty  bool
}

func (ci *ChunkInstance) Key() ChunkKey {
	return MakeChunkKey(ci.Coord, ci.Lod)
}

// NeighborLookup resolves a region coordinate to its currently active
// instance, or nil. Collaborators use it for read-only access to neighbor
// density and light buffers; they must never mutate the neighbor.
type NeighborLookup func(Coord) *ChunkInstance

// TerrainSampler turns a region coordinate and LOD into raw surface geometry.
// neighborLods carries the active LOD of each face-adjacent region in
// faceOffsets order so boundary geometry can be stitched seamlessly. Sample
// runs off the frame loop and must be safe to call concurrently for distinct
// (coordinate, LOD) pairs.
type TerrainSampler interface {
	Sample(coord Coord, lod Lod, neighborLods [6]Lod) (*MeshPayload, error)
}

// LightSolver owns per-instance light propagation state. Update may be called
// repeatedly before the field stabilizes; Bake commits the current
// propagation into renderable form.
type LightSolver interface {
	Register(inst *ChunkInstance)
	Unregister(inst *ChunkInstance)
	Update(inst *ChunkInstance, neighbors NeighborLookup)
	Bake(inst *ChunkInstance, neighbors NeighborLookup)
	Invalidate(inst *ChunkInstance)
}

// AsyncOp is a poll-style handle for collaborator work that completes on a
// later frame. Done must be cheap and is polled once per frame.
type AsyncOp interface {
	Done() bool
}

// VisibilitySolver computes per-instance visible-index results, typically via
// an asynchronous device readback. IsReady reports whether the instance has a
// non-empty, valid visible-index result. Unregister is asynchronous; the
// returned op completes only once no readback for the instance is in flight.
type VisibilitySolver interface {
	Register(inst *ChunkInstance)
	Unregister(inst *ChunkInstance) AsyncOp
	Update(inst *ChunkInstance, neighbors NeighborLookup)
	IsReady(inst *ChunkInstance) bool
	ReadbackPending(inst *ChunkInstance) bool
}

// Renderer owns device-resident geometry. Register uploads a freshly sampled
// payload; Update consumes only the instances selected for rendering this
// frame and performs the frame's device submission.
type Renderer interface {
	Register(inst *ChunkInstance, payload *MeshPayload) error
	Unregister(inst *ChunkInstance)
	Update(active []*ChunkInstance)
}

// Collaborators bundles the external contracts the director drives. All four
// must be wired before the director is constructed.
type Collaborators struct {
	Sampler    TerrainSampler
	Light      LightSolver
	Visibility VisibilitySolver
	Renderer   Renderer
}

// completedOp is an AsyncOp that is already done. Useful for collaborators
// whose unregistration has no outstanding work.
type completedOp struct{}

func (completedOp) Done() bool { return true }

// CompletedOp returns an AsyncOp that reports done immediately.
func CompletedOp() AsyncOp { return completedOp{} }
