package meshview

import (
	"testing"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVertexBufferLayout_MeshVertex(t *testing.T) {
	layout := createVertexBufferLayout(MeshVertex{})

	assert.Equal(t, uint64(unsafe.Sizeof(MeshVertex{})), layout.ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeVertex, layout.StepMode)
	require.Len(t, layout.Attributes, 3)

	assert.Equal(t, wgpu.VertexFormatFloat32x3, layout.Attributes[0].Format)
	assert.Equal(t, uint64(0), layout.Attributes[0].Offset)
	assert.Equal(t, uint32(0), layout.Attributes[0].ShaderLocation)

	assert.Equal(t, wgpu.VertexFormatFloat32x2, layout.Attributes[1].Format)
	assert.Equal(t, uint64(12), layout.Attributes[1].Offset)
	assert.Equal(t, uint32(1), layout.Attributes[1].ShaderLocation)

	assert.Equal(t, wgpu.VertexFormatFloat32x3, layout.Attributes[2].Format)
	assert.Equal(t, uint64(20), layout.Attributes[2].Offset)
	assert.Equal(t, uint32(2), layout.Attributes[2].ShaderLocation)
}

func TestCreateVertexBufferLayout_SkipsUntaggedFields(t *testing.T) {
	type padded struct {
		Pos     [2]float32 `gpu:"layout" format:"float32x2" location:"0"`
		Ignored float32
		Color   [4]float32 `gpu:"layout" format:"float32x4" location:"1"`
	}

	layout := createVertexBufferLayout(padded{})

	require.Len(t, layout.Attributes, 2)
	// Untagged fields still contribute to offsets and the stride.
	assert.Equal(t, uint64(12), layout.Attributes[1].Offset)
	assert.Equal(t, uint64(unsafe.Sizeof(padded{})), layout.ArrayStride)
}

func TestCreateVertexBufferLayout_PanicsOnNonStruct(t *testing.T) {
	require.Panics(t, func() {
		createVertexBufferLayout([]float32{1, 2, 3})
	})
}

func TestParseFormat_Unsupported(t *testing.T) {
	require.Panics(t, func() {
		parseFormat("float64x3")
	})
}

func TestInstanceBufferLayout_MatchesRecord(t *testing.T) {
	layout := instanceBufferLayout()

	assert.Equal(t, uint64(unsafe.Sizeof(InstanceRecord{})), layout.ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeInstance, layout.StepMode)
	require.Len(t, layout.Attributes, 5)

	// Four matrix columns then the color, packed back to back.
	for i, attr := range layout.Attributes {
		assert.Equal(t, wgpu.VertexFormatFloat32x4, attr.Format)
		assert.Equal(t, uint64(i)*16, attr.Offset)
		assert.Equal(t, uint32(i+5), attr.ShaderLocation)
	}
}
