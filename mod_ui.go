package meshview

import (
	"unsafe"

	"github.com/Phylex/meshview/shaders"
	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/image/font/gofont/goregular"
)

// Ui is an immediate-mode text overlay: systems call Label/Button every
// frame and the collected quads are drawn on top of the 3D scene.
type Ui struct {
	atlas    *FontAtlas
	vertices []TextVertex

	mouseX, mouseY float32
	clicked        bool
	screenW        float32
	screenH        float32
}

var (
	uiTextColor      = [4]float32{1, 1, 1, 1}
	uiHighlightColor = [4]float32{1, 1, 0, 1}
)

// Label draws a text string at the given top-left pixel position.
func (ui *Ui) Label(text string, x, y, scale float32, color [4]float32) {
	if ui.screenW <= 0 || ui.screenH <= 0 {
		return
	}
	ui.vertices = ui.atlas.AppendText(ui.vertices, text, x, y, scale, color, ui.screenW, ui.screenH)
}

// Button draws a clickable label and reports whether it was clicked this
// frame. Hovered buttons are highlighted.
func (ui *Ui) Button(label string, x, y, scale float32) bool {
	if ui.screenW <= 0 || ui.screenH <= 0 {
		return false
	}

	text := "[ " + label + " ]"
	w, _ := ui.atlas.MeasureText(text, scale)
	h := ui.atlas.LineHeight(scale) * 1.5

	hovered := ui.mouseX >= x && ui.mouseX <= x+w &&
		ui.mouseY >= y && ui.mouseY <= y+h

	color := uiTextColor
	if hovered {
		color = uiHighlightColor
	}
	ui.vertices = ui.atlas.AppendText(ui.vertices, text, x, y, scale, color, ui.screenW, ui.screenH)

	return hovered && ui.clicked
}

type uiState struct {
	pipeline     *wgpu.RenderPipeline
	bindGroup    *wgpu.BindGroup
	vertexBuffer *wgpu.Buffer
	vertexCap    int
	device       *wgpu.Device
	queue        *wgpu.Queue
}

// UiModule draws an immediate-mode text overlay using a font atlas.
// Requires InputModule and RenderModule; install it after both so its
// systems run after theirs. With no font configured, Go Regular is used.
type UiModule struct {
	FontData []byte // raw TTF/OTF; takes precedence over FontPath
	FontPath string
	FontSize float64
}

func (m UiModule) Install(app *App, cmd *Commands) {
	fontSize := m.FontSize
	if fontSize == 0 {
		fontSize = 32
	}

	var atlas *FontAtlas
	var err error
	switch {
	case len(m.FontData) > 0:
		atlas, err = NewFontAtlas(m.FontData, fontSize)
	case m.FontPath != "":
		atlas, err = LoadFontAtlas(m.FontPath, fontSize)
	default:
		atlas, err = NewFontAtlas(goregular.TTF, fontSize)
	}
	if err != nil {
		panic(err)
	}

	gpuState := mustResource[GpuState](app, "UiModule requires RenderModule")

	cmd.AddResources(&Ui{atlas: atlas})
	app.addResources(createUiState(gpuState, atlas))

	app.UseSystem(System(uiFrameSystem).InStage(PreUpdate))
	app.UseSystem(System(uiRenderSystem).InStage(Render))
}

func createUiState(gpuState *GpuState, atlas *FontAtlas) *uiState {
	device := gpuState.device

	w := atlas.image.Bounds().Dx()
	h := atlas.image.Bounds().Dy()
	tex, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Text Atlas",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		Format:        wgpu.TextureFormatR8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		panic(err)
	}
	defer tex.Release()

	gpuState.queue.WriteTexture(tex.AsImageCopy(), atlas.image.Pix, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(w),
		RowsPerImage: uint32(h),
	}, &wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1})

	atlasView, err := tex.CreateView(nil)
	if err != nil {
		panic(err)
	}

	sampler, err := device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		panic(err)
	}

	shaderModule, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Text Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.TextWGSL},
	})
	if err != nil {
		panic(err)
	}
	defer shaderModule.Release()

	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Text Pipeline",
		Vertex: wgpu.VertexState{
			Module:     shaderModule,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: uint64(unsafe.Sizeof(TextVertex{})),
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
					{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 2},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     shaderModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format: gpuState.surfaceConfig.Format,
				Blend: &wgpu.BlendState{
					Color: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorSrcAlpha,
						DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
						Operation: wgpu.BlendOperationAdd,
					},
					Alpha: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorOne,
						DstFactor: wgpu.BlendFactorOne,
						Operation: wgpu.BlendOperationAdd,
					},
				},
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		panic(err)
	}

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: atlasView},
			{Binding: 1, Sampler: sampler},
		},
	})
	if err != nil {
		panic(err)
	}

	return &uiState{
		pipeline:  pipeline,
		bindGroup: bindGroup,
		device:    device,
		queue:     gpuState.queue,
	}
}

// uiFrameSystem resets the overlay for the new frame and converts mouse
// coordinates from window space to framebuffer space.
func uiFrameSystem(ui *Ui, input *Input, gpuState *GpuState) {
	ui.vertices = ui.vertices[:0]
	ui.screenW = float32(gpuState.surfaceConfig.Width)
	ui.screenH = float32(gpuState.surfaceConfig.Height)
	ui.clicked = input.JustPressed[MouseButtonLeft]

	pixelRatio := float32(1)
	if input.WindowWidth > 0 {
		pixelRatio = ui.screenW / float32(input.WindowWidth)
	}
	ui.mouseX = float32(input.MouseX) * pixelRatio
	ui.mouseY = float32(input.MouseY) * pixelRatio
}

func uiRenderSystem(ui *Ui, state *uiState, frame *FrameContext) {
	if len(ui.vertices) == 0 {
		return
	}

	if state.vertexCap < len(ui.vertices) {
		if state.vertexBuffer != nil {
			state.vertexBuffer.Release()
		}
		newCap := max(state.vertexCap*2, len(ui.vertices))
		buf, err := state.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Text Vertex Buffer",
			Size:  uint64(newCap) * uint64(unsafe.Sizeof(TextVertex{})),
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			panic(err)
		}
		state.vertexBuffer = buf
		state.vertexCap = newCap
	}

	if err := state.queue.WriteBuffer(state.vertexBuffer, 0, wgpu.ToBytes(ui.vertices)); err != nil {
		panic(err)
	}

	renderPass := frame.Encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:    frame.View,
				LoadOp:  wgpu.LoadOpLoad,
				StoreOp: wgpu.StoreOpStore,
			},
		},
	})
	defer renderPass.Release()

	renderPass.SetPipeline(state.pipeline)
	renderPass.SetBindGroup(0, state.bindGroup, nil)
	renderPass.SetVertexBuffer(0, state.vertexBuffer, 0, wgpu.WholeSize)
	renderPass.Draw(uint32(len(ui.vertices)), 1, 0, 0)

	if err := renderPass.End(); err != nil {
		panic(err)
	}
}
