package main

import (
	"github.com/strata3d/strata"
)

// floorSampler is a synthetic terrain source for exercising the streaming
// director without a real generator: every region at y=0 gets a flat floor
// tiled into meshlets, with a faint checker in the material colors so LOD
// switches are visible. Stateless, so concurrent Sample calls are safe.
type floorSampler struct {
	// tiles is the floor subdivision per axis at LOD 0; coarser LODs halve it.
	tiles int32
}

func newFloorSampler() *floorSampler {
	return &floorSampler{tiles: 16}
}

func (s *floorSampler) Sample(coord strata.Coord, lod strata.Lod, neighborLods [6]strata.Lod) (*strata.MeshPayload, error) {
	tiles := s.tiles >> int32(lod)
	if tiles < 1 {
		tiles = 1
	}
	meshlets := tiles * tiles

	p := &strata.MeshPayload{
		Vertices:       make([]float32, 0, meshlets*6*4),
		Normals:        make([]float32, 0, meshlets*6*4),
		Colors:         make([]uint32, meshlets),
		MaterialColors: make([]uint32, meshlets),
		Commands:       make([]uint32, 0, meshlets*strata.DrawCommandWords),
		Densities:      make([]uint32, meshlets),
		VertexCounts:   make([]uint32, meshlets),
		Indices:        make([]uint32, 0, meshlets*6),
	}

	const regionSize = 256.0
	step := float32(regionSize) / float32(tiles)
	ox := float32(coord.X) * regionSize
	oz := float32(coord.Z) * regionSize

	var vtx uint32
	for tz := int32(0); tz < tiles; tz++ {
		for tx := int32(0); tx < tiles; tx++ {
			x0, z0 := ox+float32(tx)*step, oz+float32(tz)*step
			x1, z1 := x0+step, z0+step

			quad := [6][2]float32{
				{x0, z0}, {x1, z0}, {x1, z1},
				{x0, z0}, {x1, z1}, {x0, z1},
			}
			for _, v := range quad {
				p.Vertices = append(p.Vertices, v[0], 0, v[1], 1)
				p.Normals = append(p.Normals, 0, 1, 0, 0)
			}

			m := tz*tiles + tx
			shade := uint32(0xFF8C8C8C)
			if (tx+tz)%2 == 0 {
				shade = 0xFFB0B0B0
			}
			p.Colors[m] = shade
			p.MaterialColors[m] = shade
			p.Densities[m] = 255
			p.VertexCounts[m] = 6
			p.Commands = append(p.Commands, 6, 1, 0, vtx, 0)
			p.Indices = append(p.Indices, vtx, vtx+1, vtx+2, vtx+3, vtx+4, vtx+5)
			vtx += 6
		}
	}
	return p, nil
}
