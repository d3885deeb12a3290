package meshview

import (
	"unsafe"

	"github.com/Phylex/meshview/shaders"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// WireframeScene selects what the renderer draws: one mesh, repeated for
// every live slot of the instance pool.
type WireframeScene struct {
	Mesh Mesh
}

type gpuMesh struct {
	vertexBuffer   *wgpu.Buffer
	lineIndexBuf   *wgpu.Buffer
	lineIndexCount uint32
}

type renderState struct {
	pipeline        *wgpu.RenderPipeline
	cameraBuffer    *wgpu.Buffer
	cameraBindGroup *wgpu.BindGroup
	depthView       *wgpu.TextureView
	meshes          map[AssetId]*gpuMesh
	backend         *wgpuInstanceBackend
	log             Logger
}

// RenderModule owns the GPU device, the wireframe pipeline and the
// GPU-mirrored instance pool. Requires LoggingModule, PlatformWindowModule,
// AssetServerModule and FlyingCameraModule.
type RenderModule struct {
	ClearColor       wgpu.Color
	InstanceCapacity uint32
}

func (m RenderModule) Install(app *App, cmd *Commands) {
	windowState := mustResource[WindowState](app, "RenderModule requires PlatformWindowModule")

	gpuState := createGpuState(windowState)

	capacity := m.InstanceCapacity
	if capacity == 0 {
		capacity = 16
	}

	log := app.Logger()
	backend := newWgpuInstanceBackend(gpuState.device, gpuState.queue)
	pool, err := NewInstancePool(backend, capacity, log)
	if err != nil {
		panic(err)
	}

	clearColor := m.ClearColor
	if clearColor == (wgpu.Color{}) {
		clearColor = wgpu.Color{R: 0.1, G: 0.2, B: 0.3, A: 1.0}
	}

	rState := createRenderState(gpuState, backend, log)

	cmd.AddResources(gpuState, pool, rState, &WireframeScene{}, &FrameContext{})
	app.addResources(&renderConfig{ClearColor: clearColor})

	app.UseSystem(System(prepareFrameSystem).InStage(PreRender))
	app.UseSystem(System(beginFrameSystem).InStage(PreRender))
	app.UseSystem(System(wireframeRenderSystem).InStage(Render))
	app.UseSystem(System(presentFrameSystem).InStage(PostRender))
}

// FrameContext carries the swapchain view and command encoder of the frame
// currently being recorded. Valid between beginFrameSystem and
// presentFrameSystem; render systems append their passes to Encoder.
type FrameContext struct {
	View    *wgpu.TextureView
	Encoder *wgpu.CommandEncoder
}

type renderConfig struct {
	ClearColor wgpu.Color
}

func createRenderState(gpuState *GpuState, backend *wgpuInstanceBackend, log Logger) *renderState {
	device := gpuState.device

	shaderModule, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "WireframeShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.WireframeWGSL},
	})
	if err != nil {
		panic(err)
	}
	defer shaderModule.Release()

	cameraBgl, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "CameraBGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex,
				Buffer: wgpu.BufferBindingLayout{
					Type:             wgpu.BufferBindingTypeUniform,
					MinBindingSize:   uint64(unsafe.Sizeof(mgl32.Mat4{})),
					HasDynamicOffset: false,
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	defer cameraBgl.Release()

	pipelineLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{cameraBgl},
	})
	if err != nil {
		panic(err)
	}
	defer pipelineLayout.Release()

	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "WireframePipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     shaderModule,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{
				createVertexBufferLayout(MeshVertex{}),
				instanceBufferLayout(),
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     shaderModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    gpuState.surfaceConfig.Format,
					Blend:     nil,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyLineList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            depthTextureFormat,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare:     wgpu.CompareFunctionAlways,
				FailOp:      wgpu.StencilOperationKeep,
				DepthFailOp: wgpu.StencilOperationKeep,
				PassOp:      wgpu.StencilOperationKeep,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare:     wgpu.CompareFunctionAlways,
				FailOp:      wgpu.StencilOperationKeep,
				DepthFailOp: wgpu.StencilOperationKeep,
				PassOp:      wgpu.StencilOperationKeep,
			},
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		panic(err)
	}

	cameraBuffer, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Camera Buffer",
		Size:  uint64(unsafe.Sizeof(mgl32.Mat4{})),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		panic(err)
	}

	cameraBindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "CameraBindGroup",
		Layout: cameraBgl,
		Entries: []wgpu.BindGroupEntry{
			{
				Binding: 0,
				Buffer:  cameraBuffer,
				Size:    wgpu.WholeSize,
			},
		},
	})
	if err != nil {
		panic(err)
	}

	return &renderState{
		pipeline:        pipeline,
		cameraBuffer:    cameraBuffer,
		cameraBindGroup: cameraBindGroup,
		depthView:       createDepthTexture(gpuState),
		meshes:          make(map[AssetId]*gpuMesh),
		backend:         backend,
		log:             log,
	}
}

// prepareFrameSystem runs before the render pass: it tracks window resizes,
// uploads the camera matrix and flushes pending instance pool changes to
// the GPU.
func prepareFrameSystem(s *WindowState, gpuState *GpuState, rState *renderState, cam *Camera, pool *InstancePool) {
	width, height := s.windowGlfw.GetFramebufferSize()
	if uint32(width) != gpuState.surfaceConfig.Width || uint32(height) != gpuState.surfaceConfig.Height {
		gpuState.reconfigureSurface(width, height)
		if rState.depthView != nil {
			rState.depthView.Release()
		}
		rState.depthView = createDepthTexture(gpuState)
	}

	aspect := float32(gpuState.surfaceConfig.Width) / float32(gpuState.surfaceConfig.Height)
	viewProj := cam.ViewProjection(aspect)
	if err := gpuState.queue.WriteBuffer(rState.cameraBuffer, 0, wgpu.ToBytes(viewProj[:])); err != nil {
		panic(err)
	}

	flushPool(pool, rState.log)
}

// flushPool pushes pending instance pool changes to the GPU. A failed flush
// keeps the pool dirty, so the next frame retries.
func flushPool(pool *InstancePool, log Logger) {
	if err := pool.Flush(); err != nil {
		log.Errorf("instance pool flush failed: %v", err)
	}
}

// ensureGpuMesh lazily uploads mesh data the first time it is drawn.
func ensureGpuMesh(rState *renderState, gpuState *GpuState, assets *AssetServer, mesh Mesh) *gpuMesh {
	if gm, ok := rState.meshes[mesh.assetId]; ok {
		return gm
	}

	asset, ok := assets.GetMesh(mesh)
	if !ok {
		return nil
	}

	vertexBuf, lineIndexBuf := createVertexIndexBuffers(asset.vertices, asset.lineIndices, gpuState.device)
	gm := &gpuMesh{
		vertexBuffer:   vertexBuf,
		lineIndexBuf:   lineIndexBuf,
		lineIndexCount: uint32(len(asset.lineIndices)),
	}
	rState.meshes[mesh.assetId] = gm
	return gm
}

func beginFrameSystem(gpuState *GpuState, frame *FrameContext) {
	nextTexture, err := gpuState.surface.GetCurrentTexture()
	if err != nil {
		panic(err)
	}
	view, err := nextTexture.CreateView(nil)
	if err != nil {
		panic(err)
	}

	encoder, err := gpuState.device.CreateCommandEncoder(nil)
	if err != nil {
		panic(err)
	}

	frame.View = view
	frame.Encoder = encoder
}

func wireframeRenderSystem(gpuState *GpuState, rState *renderState, cfg *renderConfig, scene *WireframeScene, assets *AssetServer, pool *InstancePool, frame *FrameContext) {
	renderPass := frame.Encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       frame.View,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: cfg.ClearColor,
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            rState.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	defer renderPass.Release()

	gm := ensureGpuMesh(rState, gpuState, assets, scene.Mesh)
	if gm != nil && pool.LiveCount() > 0 {
		renderPass.SetPipeline(rState.pipeline)
		renderPass.SetBindGroup(0, rState.cameraBindGroup, nil)
		renderPass.SetVertexBuffer(0, gm.vertexBuffer, 0, wgpu.WholeSize)
		renderPass.SetVertexBuffer(1, rState.backend.Buffer(), 0, wgpu.WholeSize)
		renderPass.SetIndexBuffer(gm.lineIndexBuf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		renderPass.DrawIndexed(gm.lineIndexCount, pool.LiveCount(), 0, 0, 0)
	}

	if err := renderPass.End(); err != nil {
		panic(err)
	}
}

func presentFrameSystem(gpuState *GpuState, frame *FrameContext) {
	cmdBuffer, err := frame.Encoder.Finish(nil)
	if err != nil {
		panic(err)
	}
	defer cmdBuffer.Release()

	gpuState.queue.Submit(cmdBuffer)
	gpuState.surface.Present()

	frame.Encoder.Release()
	frame.View.Release()
	frame.Encoder = nil
	frame.View = nil
}
