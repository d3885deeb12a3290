package meshview

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// wgpu clip space has z in [0,1] while mgl32.Perspective produces the
// OpenGL [-1,1] range. Applied on top of every projection matrix.
var openglToWgpu = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Camera is a free-flying perspective camera. Yaw/Pitch are in degrees.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32

	Fov  float32
	Near float32
	Far  float32

	Speed       float32
	Sensitivity float32
}

// Forward returns the unit view direction for the current yaw/pitch.
func (c *Camera) Forward() mgl32.Vec3 {
	yawRad := mgl32.DegToRad(c.Yaw)
	pitchRad := mgl32.DegToRad(c.Pitch)

	return mgl32.Vec3{
		float32(math.Sin(float64(yawRad)) * math.Cos(float64(pitchRad))),
		float32(math.Sin(float64(pitchRad))),
		float32(-math.Cos(float64(yawRad)) * math.Cos(float64(pitchRad))),
	}.Normalize()
}

// ViewProjection builds the combined camera matrix for the given aspect
// ratio, including the clip-space correction.
func (c *Camera) ViewProjection(aspect float32) mgl32.Mat4 {
	forward := c.Forward()
	view := mgl32.LookAtV(c.Position, c.Position.Add(forward), mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(c.Fov), aspect, c.Near, c.Far)
	return openglToWgpu.Mul4(proj).Mul4(view)
}

// FlyingCameraModule installs a Camera resource plus WASD + mouse-look
// controls. Tab toggles mouse capture; Space/Ctrl move up/down.
type FlyingCameraModule struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
}

func (m FlyingCameraModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Camera{
		Position:    m.Position,
		Yaw:         m.Yaw,
		Pitch:       m.Pitch,
		Fov:         45.0,
		Near:        0.1,
		Far:         100.0,
		Speed:       5.0,
		Sensitivity: 0.1,
	})
	app.UseSystem(
		System(flyingCameraSystem).
			InStage(Update),
	)
}

func flyingCameraSystem(input *Input, cam *Camera, time *Time) {
	if input.JustPressed[KeyTab] {
		input.MouseCaptured = !input.MouseCaptured
	}

	// 1. Rotation: while captured, or while the right button is held.
	if input.MouseCaptured || input.Pressed[MouseButtonRight] {
		cam.Yaw += float32(input.MouseDeltaX) * cam.Sensitivity
		cam.Pitch -= float32(input.MouseDeltaY) * cam.Sensitivity
	}

	// Clamp pitch
	if cam.Pitch > 89.0 {
		cam.Pitch = 89.0
	}
	if cam.Pitch < -89.0 {
		cam.Pitch = -89.0
	}

	forward := cam.Forward()
	right := forward.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
	up := mgl32.Vec3{0, 1, 0}

	// Scroll zooms by dollying along the view direction.
	if input.ScrollY != 0 {
		cam.Position = cam.Position.Add(forward.Mul(float32(input.ScrollY) * 0.5))
	}

	dt := float32(time.Dt.Seconds())
	if dt <= 0 {
		return
	}

	// 2. Movement
	var move mgl32.Vec3
	if input.Pressed[KeyW] {
		move = move.Add(forward)
	}
	if input.Pressed[KeyS] {
		move = move.Sub(forward)
	}
	if input.Pressed[KeyA] {
		move = move.Sub(right)
	}
	if input.Pressed[KeyD] {
		move = move.Add(right)
	}
	if input.Pressed[KeySpace] {
		move = move.Add(up)
	}
	if input.Pressed[KeyControl] {
		move = move.Sub(up)
	}

	if move.Len() > 0 {
		cam.Position = cam.Position.Add(move.Normalize().Mul(cam.Speed * dt))
	}
}
