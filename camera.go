package strata

import "github.com/go-gl/mathgl/mgl32"

// CameraState is the per-frame camera snapshot the director streams against.
type CameraState struct {
	Position mgl32.Vec3
	Forward  mgl32.Vec3
}

// regionCenter is the world-space center of a region.
func regionCenter(c Coord, regionSize int32) mgl32.Vec3 {
	half := float32(regionSize) * 0.5
	return mgl32.Vec3{
		float32(c.X)*float32(regionSize) + half,
		float32(c.Y)*float32(regionSize) + half,
		float32(c.Z)*float32(regionSize) + half,
	}
}

// regionDistance measures camera-to-region-center distance under the
// configured mode.
func regionDistance(cam CameraState, c Coord, regionSize int32, mode DistanceMode) float32 {
	center := regionCenter(c, regionSize)
	d := center.Sub(cam.Position)
	if mode == DistanceHorizontal {
		d[1] = 0
	}
	return d.Len()
}
