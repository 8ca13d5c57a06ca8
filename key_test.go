package strata

import "testing"

func TestPositionKeyRoundtrip(t *testing.T) {
	coords := []Coord{
		{0, 0, 0},
		{1, 2, 3},
		{-1, -2, -3},
		{-coordHalf, 0, coordHalf - 1},
		{511, -512, 1000},
	}
	for _, c := range coords {
		got := c.Key().Coord()
		if got != c {
			t.Errorf("roundtrip %v: got %v", c, got)
		}
	}
}

func TestPositionKeyDistinct(t *testing.T) {
	seen := make(map[PositionKey]Coord)
	for x := int32(-3); x <= 3; x++ {
		for y := int32(-3); y <= 3; y++ {
			for z := int32(-3); z <= 3; z++ {
				c := Coord{x, y, z}
				k := c.Key()
				if prev, ok := seen[k]; ok {
					t.Fatalf("key collision: %v and %v both map to %d", prev, c, k)
				}
				seen[k] = c
			}
		}
	}
}

func TestPositionKeyOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range coordinate")
		}
	}()
	Coord{coordHalf, 0, 0}.Key()
}

func TestChunkKeyLodBits(t *testing.T) {
	c := Coord{10, -20, 30}
	for lod := Lod(0); lod <= lodMask; lod++ {
		k := MakeChunkKey(c, lod)
		if k.Lod() != lod {
			t.Errorf("lod %d: extracted %d", lod, k.Lod())
		}
		if k.Position() != c.Key() {
			t.Errorf("lod %d: position bits corrupted", lod)
		}
	}
}

func TestChunkKeyDistinguishesLods(t *testing.T) {
	c := Coord{5, 5, 5}
	if MakeChunkKey(c, 0) == MakeChunkKey(c, 1) {
		t.Error("same key for different lods")
	}
}
