// Package light is a CPU ambient-light solver for chunk instances. It keeps a
// scalar energy field per meshlet, relaxes it over a few iterations against
// local density and the energy of active neighbor regions, and bakes the
// result into the instance's renderable colors.
package light

import (
	"github.com/strata3d/strata"
)

// skyEnergy is the unoccluded ambient level; floorEnergy keeps fully occluded
// meshlets from baking to pure black.
const (
	skyEnergy   = float32(1.0)
	floorEnergy = float32(0.12)
)

var faceDirs = [6]strata.Coord{
	{X: -1}, {X: 1},
	{Y: -1}, {Y: 1},
	{Z: -1}, {Z: 1},
}

type field struct {
	energy  []float32
	settled bool
}

// Solver implements strata.LightSolver. All methods run on the frame loop;
// no internal locking.
type Solver struct {
	log    strata.Logger
	fields map[uint64]*field
}

func NewSolver(log strata.Logger) *Solver {
	if log == nil {
		log = strata.NewNopLogger()
	}
	return &Solver{
		log:    log,
		fields: make(map[uint64]*field),
	}
}

// Register seeds the instance's energy field from its own densities: open
// meshlets start at sky level, dense ones near the floor.
func (s *Solver) Register(inst *strata.ChunkInstance) {
	if _, ok := s.fields[inst.Id]; ok {
		return
	}
	f := &field{energy: make([]float32, len(inst.Densities))}
	for i, d := range inst.Densities {
		f.energy[i] = seedEnergy(d)
	}
	s.fields[inst.Id] = f
}

func (s *Solver) Unregister(inst *strata.ChunkInstance) {
	delete(s.fields, inst.Id)
}

// Invalidate marks the field unsettled so the next Update re-relaxes it.
// Idempotent.
func (s *Solver) Invalidate(inst *strata.ChunkInstance) {
	if f, ok := s.fields[inst.Id]; ok {
		f.settled = false
	}
}

// Update runs one relaxation iteration: each meshlet's energy drifts toward
// the density-attenuated blend of its seed level and the mean energy of the
// face-adjacent active neighbors. Neighbor fields are read, never written.
func (s *Solver) Update(inst *strata.ChunkInstance, neighbors strata.NeighborLookup) {
	f, ok := s.fields[inst.Id]
	if !ok || f.settled {
		return
	}

	ambient, found := s.neighborAmbient(inst, neighbors)
	for i, d := range inst.Densities {
		target := seedEnergy(d)
		if found > 0 {
			// Bounce contribution: neighbor light enters attenuated by this
			// meshlet's own occlusion.
			occlusion := float32(d&0xFF) / 255
			target += ambient * (1 - occlusion) * 0.5
			if target > skyEnergy {
				target = skyEnergy
			}
		}
		f.energy[i] += (target - f.energy[i]) * 0.5
	}
}

// Bake commits the field into LitColors by modulating the material colors,
// and flags the instance for a device re-upload. The field is settled until
// the next invalidation.
func (s *Solver) Bake(inst *strata.ChunkInstance, neighbors strata.NeighborLookup) {
	f, ok := s.fields[inst.Id]
	if !ok {
		return
	}
	if len(inst.LitColors) != len(inst.MaterialColors) {
		inst.LitColors = make([]uint32, len(inst.MaterialColors))
	}
	for i, c := range inst.MaterialColors {
		e := skyEnergy
		if i < len(f.energy) {
			e = f.energy[i]
		}
		inst.LitColors[i] = modulate(c, e)
	}
	f.settled = true
	inst.ColorsDirty = true
}

// neighborAmbient averages the mean energy of the face-adjacent active
// instances this solver has fields for.
func (s *Solver) neighborAmbient(inst *strata.ChunkInstance, neighbors strata.NeighborLookup) (float32, int) {
	var sum float32
	var found int
	for _, d := range faceDirs {
		n := neighbors(strata.Coord{X: inst.Coord.X + d.X, Y: inst.Coord.Y + d.Y, Z: inst.Coord.Z + d.Z})
		if n == nil {
			continue
		}
		nf, ok := s.fields[n.Id]
		if !ok || len(nf.energy) == 0 {
			continue
		}
		var ns float32
		for _, e := range nf.energy {
			ns += e
		}
		sum += ns / float32(len(nf.energy))
		found++
	}
	if found == 0 {
		return 0, 0
	}
	return sum / float32(found), found
}

// Fields reports how many instances currently hold energy fields.
func (s *Solver) Fields() int {
	return len(s.fields)
}

func seedEnergy(density uint32) float32 {
	e := skyEnergy - float32(density&0xFF)/255*(skyEnergy-floorEnergy)
	if e < floorEnergy {
		return floorEnergy
	}
	return e
}

// modulate scales the RGB channels of a packed RGBA8 color, leaving alpha.
func modulate(c uint32, e float32) uint32 {
	if e > 1 {
		e = 1
	}
	if e < 0 {
		e = 0
	}
	r := uint32(float32(c&0xFF) * e)
	g := uint32(float32(c>>8&0xFF) * e)
	b := uint32(float32(c>>16&0xFF) * e)
	return r | g<<8 | b<<16 | c&0xFF000000
}
