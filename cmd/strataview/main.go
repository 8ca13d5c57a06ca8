package main

import (
	"flag"
	"math"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/strata3d/strata"
	"github.com/strata3d/strata/gpu"
	"github.com/strata3d/strata/light"
)

func init() {
	runtime.LockOSThread()
}

type flyCamera struct {
	position   mgl32.Vec3
	yaw, pitch float32
	speed      float32
}

func (c *flyCamera) forward() mgl32.Vec3 {
	cy, sy := cos(c.yaw), sin(c.yaw)
	cp, sp := cos(c.pitch), sin(c.pitch)
	return mgl32.Vec3{sy * cp, sp, -cy * cp}.Normalize()
}

func (c *flyCamera) state() strata.CameraState {
	return strata.CameraState{Position: c.position, Forward: c.forward()}
}

func cos(r float32) float32 { return float32(math.Cos(float64(r))) }
func sin(r float32) float32 { return float32(math.Sin(float64(r))) }

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults used when empty)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := strata.NewDefaultLogger("strataview", *debug)

	cfg := strata.DefaultConfig()
	if *configPath != "" {
		loaded, err := strata.LoadConfig(*configPath)
		if err != nil {
			log.Errorf("config: %v", err)
			return
		}
		cfg = loaded
	}

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "Strata Viewer", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	instance := wgpu.CreateInstance(nil)
	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		panic(err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		panic(err)
	}

	renderer := gpu.NewRenderer(device, log)
	visibility := gpu.NewVisibility(device, renderer, log)

	director, err := strata.NewDirector(cfg, strata.Collaborators{
		Sampler:    newFloorSampler(),
		Light:      light.NewSolver(log),
		Visibility: visibility,
		Renderer:   renderer,
	}, log)
	if err != nil {
		log.Errorf("director: %v", err)
		return
	}

	cam := &flyCamera{
		position: mgl32.Vec3{128, 64, 128},
		speed:    120,
	}
	captured := false
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
		if key == glfw.KeyTab && action == glfw.Press {
			captured = !captured
			if captured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		}
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if !captured {
			return
		}
		cam.yaw += float32(xpos-640) * 0.002
		cam.pitch -= float32(ypos-360) * 0.002
		if cam.pitch > 1.5 {
			cam.pitch = 1.5
		}
		if cam.pitch < -1.5 {
			cam.pitch = -1.5
		}
		w.SetCursorPos(640, 360)
	})

	director.Init(cam.state())

	lastTime := glfw.GetTime()
	for !window.ShouldClose() {
		glfw.PollEvents()

		now := glfw.GetTime()
		dt := float32(now - lastTime)
		lastTime = now

		move := mgl32.Vec3{}
		fwd := cam.forward()
		right := fwd.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
		if window.GetKey(glfw.KeyW) == glfw.Press {
			move = move.Add(fwd)
		}
		if window.GetKey(glfw.KeyS) == glfw.Press {
			move = move.Sub(fwd)
		}
		if window.GetKey(glfw.KeyD) == glfw.Press {
			move = move.Add(right)
		}
		if window.GetKey(glfw.KeyA) == glfw.Press {
			move = move.Sub(right)
		}
		if move.Len() > 0 {
			cam.position = cam.position.Add(move.Normalize().Mul(cam.speed * dt))
		}

		director.Step(cam.state())
		device.Poll(false, nil)

		if director.Frame()%120 == 0 {
			s := director.Stats()
			log.Infof("frame %d: regions=%d active=%d pending=%d sampling=%d throttled=%d teardown=%d",
				director.Frame(), s.Regions, s.Active, s.Pending, s.Sampling, s.Throttled, s.Teardown)
		}
	}
}
