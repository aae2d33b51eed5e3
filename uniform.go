package forgevk

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// UniformSize is the byte size of UniformBufferObject on the device.
const UniformSize = 3 * 16 * 4

// UniformBufferObject is the per-frame transform block bound at binding 0.
type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

var (
	eye    = mgl32.Vec3{2, 2, 2}
	center = mgl32.Vec3{0, 0, 0}
	up     = mgl32.Vec3{0, 0, 1}
)

// ComputeUniforms returns the transforms at elapsed time since start. The
// model spins 90 degrees per second about z; view and projection are fixed.
func ComputeUniforms(elapsed time.Duration, extent vk.Extent2D) UniformBufferObject {
	var ubo UniformBufferObject
	ubo.Model = mgl32.HomogRotate3DZ(mgl32.DegToRad(float32(elapsed.Seconds() * 90)))
	ubo.View = mgl32.LookAtV(eye, center, up)

	aspect := float32(1)
	if extent.Height != 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	ubo.Proj = mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10)
	VulkanProjection(&ubo.Proj)
	return ubo
}

// VulkanProjection converts a GL style projection in place: Y points down
// in clip space and depth maps to [0, 1] instead of [-1, 1].
func VulkanProjection(m *mgl32.Mat4) {
	for c := 0; c < 4; c++ {
		col := m[c*4 : c*4+4]
		col[1] = -col[1]
		col[2] = 0.5*col[2] + 0.5*col[3]
	}
}

// Bytes returns the block in std140 layout. mgl32 matrices are column-major
// like GLSL's.
func (u *UniformBufferObject) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(UniformSize)
	binary.Write(&buf, binary.LittleEndian, u)
	return buf.Bytes()
}
