package strata

import "fmt"

// Region tracks every resident LOD instance of one coordinate plus which one
// currently renders.
type Region struct {
	Coord Coord

	lods       map[Lod]*ChunkInstance
	activeLod  Lod
	hasActive  bool
	generating map[Lod]bool

	// doomed regions have been queued for teardown and are skipped by the
	// active-set manager until their instances drain.
	doomed bool
}

func newRegion(c Coord) *Region {
	return &Region{
		Coord:      c,
		lods:       make(map[Lod]*ChunkInstance),
		generating: make(map[Lod]bool),
	}
}

// Instance returns the resident instance at the given LOD, or nil.
func (r *Region) Instance(lod Lod) *ChunkInstance {
	return r.lods[lod]
}

// ActiveLod reports the rendered LOD; ok is false until the first instance
// finalizes.
func (r *Region) ActiveLod() (Lod, bool) {
	return r.activeLod, r.hasActive
}

// ActiveInstance returns the instance backing the active LOD, or nil.
func (r *Region) ActiveInstance() *ChunkInstance {
	if !r.hasActive {
		return nil
	}
	return r.lods[r.activeLod]
}

// SetInstance installs a finalized instance into the LOD mapping.
func (r *Region) SetInstance(inst *ChunkInstance) {
	r.lods[inst.Lod] = inst
}

// Activate switches the rendered LOD. The target instance must be resident;
// anything else is a scheduler bug, not a recoverable condition.
func (r *Region) Activate(lod Lod) {
	if r.lods[lod] == nil {
		panic(fmt.Sprintf("strata: activating non-resident lod %d for region %v", lod, r.Coord))
	}
	r.activeLod = lod
	r.hasActive = true
}

// RemoveInstance drops a LOD from the mapping. If it was the active LOD, the
// finest remaining instance takes over so the region never renders as empty
// while other LODs remain. Returns true once the mapping is empty.
func (r *Region) RemoveInstance(lod Lod) bool {
	delete(r.lods, lod)
	if r.hasActive && r.activeLod == lod {
		r.hasActive = false
		best := Lod(-1)
		for l := range r.lods {
			if best < 0 || l < best {
				best = l
			}
		}
		if best >= 0 {
			r.activeLod = best
			r.hasActive = true
		}
	}
	return len(r.lods) == 0
}

// Lods returns the resident LOD set, unordered.
func (r *Region) Lods() []Lod {
	out := make([]Lod, 0, len(r.lods))
	for l := range r.lods {
		out = append(out, l)
	}
	return out
}

// Generating reports whether a LOD is mid-pipeline for this coordinate.
func (r *Region) Generating(lod Lod) bool {
	return r.generating[lod]
}

// SpatialIndex is the registry of resident regions keyed by dense position
// keys. All cross-references between regions and instances are coordinate
// lookups through this index, never retained pointers, so teardown can never
// leave a dangling reference.
type SpatialIndex struct {
	regions map[PositionKey]*Region

	// neighborOffsets is the configured geometric connectivity (6 or 26).
	neighborOffsets []Coord
}

func NewSpatialIndex(connectivity int) *SpatialIndex {
	idx := &SpatialIndex{regions: make(map[PositionKey]*Region)}
	switch connectivity {
	case 26:
		idx.neighborOffsets = cubeOffsets[:]
	default:
		idx.neighborOffsets = faceOffsets[:]
	}
	return idx
}

// Region returns the resident region at a coordinate, or nil.
func (s *SpatialIndex) Region(c Coord) *Region {
	return s.regions[c.Key()]
}

// Ensure returns the region at a coordinate, creating it if absent.
func (s *SpatialIndex) Ensure(c Coord) *Region {
	k := c.Key()
	r := s.regions[k]
	if r == nil {
		r = newRegion(c)
		s.regions[k] = r
	}
	return r
}

// Remove drops a region entirely.
func (s *SpatialIndex) Remove(c Coord) {
	delete(s.regions, c.Key())
}

// Instance resolves (coordinate, LOD) to a resident instance, or nil.
func (s *SpatialIndex) Instance(c Coord, lod Lod) *ChunkInstance {
	if r := s.regions[c.Key()]; r != nil {
		return r.lods[lod]
	}
	return nil
}

// ActiveInstance resolves a coordinate to its currently rendered instance.
// This is the NeighborLookup handed to collaborators.
func (s *SpatialIndex) ActiveInstance(c Coord) *ChunkInstance {
	if r := s.regions[c.Key()]; r != nil {
		return r.ActiveInstance()
	}
	return nil
}

// Neighbors resolves the configured geometric neighborhood of a coordinate to
// live active instances. Absent neighbors are omitted, never errors.
func (s *SpatialIndex) Neighbors(c Coord) []*ChunkInstance {
	out := make([]*ChunkInstance, 0, len(s.neighborOffsets))
	for _, off := range s.neighborOffsets {
		if inst := s.ActiveInstance(c.add(off)); inst != nil {
			out = append(out, inst)
		}
	}
	return out
}

// NeighborCoords applies the configured offsets without resolving residency.
func (s *SpatialIndex) NeighborCoords(c Coord) []Coord {
	out := make([]Coord, len(s.neighborOffsets))
	for i, off := range s.neighborOffsets {
		out[i] = c.add(off)
	}
	return out
}

// FaceNeighborLods reports the active LOD of each face-adjacent region in
// faceOffsets order, defaulting to the sampled LOD where no neighbor is
// resident. The terrain sampler stitches boundary geometry from these.
func (s *SpatialIndex) FaceNeighborLods(c Coord, lod Lod) [6]Lod {
	var out [6]Lod
	for i, off := range faceOffsets {
		out[i] = lod
		if r := s.regions[c.add(off).Key()]; r != nil {
			if l, ok := r.ActiveLod(); ok {
				out[i] = l
			}
		}
	}
	return out
}

// Each visits every resident region.
func (s *SpatialIndex) Each(fn func(*Region)) {
	for _, r := range s.regions {
		fn(r)
	}
}

// Len is the resident region count.
func (s *SpatialIndex) Len() int {
	return len(s.regions)
}
