package meshview

import (
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

const instanceRecordStride = uint64(unsafe.Sizeof(InstanceRecord{}))

// wgpuInstanceBackend mirrors the instance pool into a GPU vertex buffer.
// Realloc swaps the buffer for a larger one; Upload rewrites the whole
// contents. The pool guarantees Upload data always spans the full capacity,
// so a plain WriteBuffer at offset 0 is enough.
type wgpuInstanceBackend struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	buffer *wgpu.Buffer
}

func newWgpuInstanceBackend(device *wgpu.Device, queue *wgpu.Queue) *wgpuInstanceBackend {
	return &wgpuInstanceBackend{device: device, queue: queue}
}

func (b *wgpuInstanceBackend) Realloc(capacity uint32) error {
	buffer, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            "Instance Buffer",
		Size:             uint64(capacity) * instanceRecordStride,
		Usage:            wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return err
	}
	if b.buffer != nil {
		b.buffer.Release()
	}
	b.buffer = buffer
	return nil
}

func (b *wgpuInstanceBackend) Upload(packed []InstanceRecord) error {
	return b.queue.WriteBuffer(b.buffer, 0, wgpu.ToBytes(packed))
}

func (b *wgpuInstanceBackend) Buffer() *wgpu.Buffer {
	return b.buffer
}

func (b *wgpuInstanceBackend) release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

// instanceBufferLayout is the per-instance vertex layout matching
// InstanceRecord: four mat4 columns plus a color, stepped per instance.
// Locations 0-4 are reserved for per-vertex mesh attributes.
func instanceBufferLayout() wgpu.VertexBufferLayout {
	const vec4Size = uint64(unsafe.Sizeof(mgl32.Vec4{}))
	return wgpu.VertexBufferLayout{
		ArrayStride: instanceRecordStride,
		StepMode:    wgpu.VertexStepModeInstance,
		Attributes: []wgpu.VertexAttribute{
			{ShaderLocation: 5, Offset: 0 * vec4Size, Format: wgpu.VertexFormatFloat32x4},
			{ShaderLocation: 6, Offset: 1 * vec4Size, Format: wgpu.VertexFormatFloat32x4},
			{ShaderLocation: 7, Offset: 2 * vec4Size, Format: wgpu.VertexFormatFloat32x4},
			{ShaderLocation: 8, Offset: 3 * vec4Size, Format: wgpu.VertexFormatFloat32x4},
			{ShaderLocation: 9, Offset: 4 * vec4Size, Format: wgpu.VertexFormatFloat32x4},
		},
	}
}
