package forgevk

import (
	"bytes"
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// Vertex is the interleaved vertex record consumed by the pipeline.
type Vertex struct {
	Pos   mgl32.Vec3
	Color mgl32.Vec3
	UV    mgl32.Vec2
}

// VertexStride is the size of one Vertex in bytes.
const VertexStride = 8 * 4

// VertexBinding describes the single per-vertex binding.
func VertexBinding() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    VertexStride,
		InputRate: vk.VertexInputRateVertex,
	}
}

// VertexAttributes describes position, color and uv at locations 0, 1 and 2.
func VertexAttributes() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 12},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 24},
	}
}

// VertexBytes packs vertices in binding layout.
func VertexBytes(vertices []Vertex) []byte {
	var buf bytes.Buffer
	buf.Grow(len(vertices) * VertexStride)
	binary.Write(&buf, binary.LittleEndian, vertices)
	return buf.Bytes()
}

// Mesh is indexed triangle-list geometry.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// QuadMesh returns two stacked textured quads, enough to exercise the depth
// test.
func QuadMesh() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{mgl32.Vec3{-0.5, -0.5, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec2{1, 0}},
			{mgl32.Vec3{0.5, -0.5, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec2{0, 0}},
			{mgl32.Vec3{0.5, 0.5, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec2{0, 1}},
			{mgl32.Vec3{-0.5, 0.5, 0}, mgl32.Vec3{1, 1, 1}, mgl32.Vec2{1, 1}},

			{mgl32.Vec3{-0.5, -0.5, -0.5}, mgl32.Vec3{1, 0, 0}, mgl32.Vec2{1, 0}},
			{mgl32.Vec3{0.5, -0.5, -0.5}, mgl32.Vec3{0, 1, 0}, mgl32.Vec2{0, 0}},
			{mgl32.Vec3{0.5, 0.5, -0.5}, mgl32.Vec3{0, 0, 1}, mgl32.Vec2{0, 1}},
			{mgl32.Vec3{-0.5, 0.5, -0.5}, mgl32.Vec3{1, 1, 1}, mgl32.Vec2{1, 1}},
		},
		Indices: []uint32{
			0, 1, 2, 2, 3, 0,
			4, 5, 6, 6, 7, 4,
		},
	}
}
