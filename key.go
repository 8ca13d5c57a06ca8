package strata

import "fmt"

// Coord identifies a cubic region of world space. Region coordinates are in
// region units, not voxels: the region at (1,0,0) starts RegionSize voxels
// along +X from the one at the origin.
type Coord struct {
	X, Y, Z int32
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Lod is a discrete detail tier. 0 is the finest; higher values are coarser.
type Lod int

// PositionKey is a dense encoding of a region coordinate.
type PositionKey uint64

// ChunkKey combines a PositionKey with a LOD in the high bits, uniquely
// identifying one generated instance of a region.
type ChunkKey uint64

const (
	// coordBase bounds the coordinate range the mixed-radix encoding supports.
	// Each axis must lie in [-coordHalf, coordHalf). coordBase^3 fits in 60
	// bits, leaving the top 4 bits of a ChunkKey for the LOD.
	coordBase = 1 << 20
	coordHalf = coordBase / 2

	lodShift = 60
	lodMask  = 0xF
)

// Key encodes the coordinate into a PositionKey. Collision-free within the
// supported range; panics for coordinates outside it rather than silently
// wrapping into another region's key.
func (c Coord) Key() PositionKey {
	if !c.inRange() {
		panic(fmt.Sprintf("strata: region coordinate %v outside supported range [-%d,%d)", c, coordHalf, coordHalf))
	}
	x := uint64(int64(c.X) + coordHalf)
	y := uint64(int64(c.Y) + coordHalf)
	z := uint64(int64(c.Z) + coordHalf)
	return PositionKey(x + coordBase*(y+coordBase*z))
}

func (c Coord) inRange() bool {
	return c.X >= -coordHalf && c.X < coordHalf &&
		c.Y >= -coordHalf && c.Y < coordHalf &&
		c.Z >= -coordHalf && c.Z < coordHalf
}

// Coord decodes the key back into its region coordinate.
func (k PositionKey) Coord() Coord {
	v := uint64(k)
	return Coord{
		X: int32(v%coordBase) - coordHalf,
		Y: int32((v/coordBase)%coordBase) - coordHalf,
		Z: int32(v/(coordBase*coordBase)) - coordHalf,
	}
}

// MakeChunkKey reserves the high bits of the position key for the LOD.
func MakeChunkKey(c Coord, lod Lod) ChunkKey {
	if lod < 0 || lod > lodMask {
		panic(fmt.Sprintf("strata: lod %d outside supported range [0,%d]", lod, lodMask))
	}
	return ChunkKey(uint64(c.Key()) | uint64(lod)<<lodShift)
}

// Position strips the LOD bits.
func (k ChunkKey) Position() PositionKey {
	return PositionKey(uint64(k) & (1<<lodShift - 1))
}

// Lod extracts the LOD bits.
func (k ChunkKey) Lod() Lod {
	return Lod(uint64(k) >> lodShift & lodMask)
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%v@lod%d", k.Position().Coord(), k.Lod())
}

// faceOffsets are the 6 face-adjacent neighbor offsets, ordered -X +X -Y +Y -Z +Z.
// The terrain sampler receives neighbor LODs in this order.
var faceOffsets = [6]Coord{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// cubeOffsets are the 26-connected neighborhood offsets.
var cubeOffsets = func() [26]Coord {
	var out [26]Coord
	i := 0
	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out[i] = Coord{dx, dy, dz}
				i++
			}
		}
	}
	return out
}()

func (c Coord) add(o Coord) Coord {
	return Coord{c.X + o.X, c.Y + o.Y, c.Z + o.Z}
}
