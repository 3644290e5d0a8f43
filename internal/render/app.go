// Package render assembles the renderer: it brings up the device, uploads the assets, builds
// the pipeline and hands everything to the frame orchestrator.
package render

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/assets"
	"github.com/vkngwrapper/learnvulkan/internal/config"
	"github.com/vkngwrapper/learnvulkan/internal/descriptor"
	"github.com/vkngwrapper/learnvulkan/internal/frame"
	"github.com/vkngwrapper/learnvulkan/internal/gpu"
	"github.com/vkngwrapper/learnvulkan/internal/memory"
	"github.com/vkngwrapper/learnvulkan/internal/pipeline"
	"github.com/vkngwrapper/learnvulkan/internal/resource"
	"github.com/vkngwrapper/learnvulkan/internal/scene"
	"github.com/vkngwrapper/learnvulkan/internal/transfer"
	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

// TextureFormat is the format textures are uploaded in. Texels are sRGB encoded.
const TextureFormat = core1_0.FormatR8G8B8A8SRGB

// App owns every object the renderer creates. Fields are in creation order.
type App struct {
	cfg    config.Config
	report vkerr.Reporter
	logger *slog.Logger

	GPU    *gpu.Context
	assets *assets.Assets

	alloc  *memory.Allocator
	engine *transfer.Engine

	vertices *memory.Buffer
	indices  *memory.Buffer

	texture     *memory.Image
	textureView core1_0.ImageView
	sampler     core1_0.Sampler

	uniforms []*memory.Buffer
	binder   *descriptor.Binder
	sets     []core1_0.DescriptorSet

	cache      *pipeline.Cache
	swapchain  *gpu.Swapchain
	renderPass core1_0.RenderPass
	layout     core1_0.PipelineLayout
	pipeline   core1_0.Pipeline

	orchestrator *frame.Orchestrator

	// scope holds everything between the context and the orchestrator.
	scope  *resource.Scope
	closed bool
}

type Options struct {
	// Hidden keeps the window off screen.
	Hidden bool
	// Scene writes the uniforms. Defaults to scene.DefaultCamera.
	Scene  frame.Scene
	Logger *slog.Logger
}

// New builds the whole renderer from cfg. On failure everything already created is destroyed.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		cfg:    cfg,
		report: vkerr.Reporter{Policy: cfg.Policy(), Logger: logger},
		logger: logger,
		scope:  resource.NewScope(logger),
	}

	// Assets are read before the window opens so a bad path fails fast.
	var err error
	a.assets, err = assets.Load(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.GPU, err = gpu.NewContext(gpu.Options{
		Window:     cfg.Window,
		Layers:     cfg.ValidationLayers(),
		Anisotropy: cfg.Textured,
		Hidden:     opts.Hidden,
		Report:     a.report,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	sceneWriter := opts.Scene
	if sceneWriter == nil {
		sceneWriter = scene.DefaultCamera
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"geometry", a.uploadGeometry},
		{"texture", a.uploadTexture},
		{"uniform buffers", a.createUniformBuffers},
		{"descriptor sets", a.createDescriptorSets},
		{"swapchain", a.createSwapchain},
		{"pipeline", a.createPipeline},
		{"frames", func() error { return a.createOrchestrator(sceneWriter) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			_ = a.Close()
			return nil, errors.Wrapf(err, "create %s", step.name)
		}
	}

	return a, nil
}

func (a *App) uploadGeometry() error {
	a.alloc = memory.NewAllocator(a.GPU.Device, a.GPU.MemoryProperties, a.report, a.logger)
	a.engine = transfer.NewEngine(a.alloc, a.GPU.GraphicsQueue, a.GPU.CommandPool, a.report, a.logger)

	mesh := a.assets.Mesh
	vertexData, err := mesh.VertexBytes()
	if err != nil {
		return err
	}
	indexData, err := mesh.IndexBytes()
	if err != nil {
		return err
	}

	a.vertices, err = a.engine.UploadBuffer(vertexData, core1_0.BufferUsageVertexBuffer)
	a.scope.Defer("vertex buffer", a.vertices.Destroy)
	if err != nil {
		return err
	}

	a.indices, err = a.engine.UploadBuffer(indexData, core1_0.BufferUsageIndexBuffer)
	a.scope.Defer("index buffer", a.indices.Destroy)
	if err != nil {
		return err
	}

	a.logger.Info("geometry uploaded", "vertices", len(mesh.Vertices), "indices", len(mesh.Indices), "index_type", mesh.IndexType())
	return nil
}

func (a *App) uploadTexture() error {
	tex := a.assets.Texture
	if tex == nil {
		return nil
	}

	var err error
	a.texture, err = a.engine.UploadImage(tex.Pixels, tex.Width, tex.Height, TextureFormat, core1_0.ImageUsageSampled)
	a.scope.Defer("texture image", a.texture.Destroy)
	if err != nil {
		return err
	}

	view, err := a.alloc.CreateImageView(a.texture.Handle, TextureFormat)
	if err != nil {
		return err
	}
	a.textureView = view
	a.scope.Defer("texture view", func() { a.GPU.Device.DestroyImageView(view, nil) })

	sampler, _, err := a.GPU.Device.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: true,
		MaxAnisotropy:    a.GPU.Physical.Properties.Limits.MaxSamplerAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     0,
	})
	if err != nil {
		return a.report.Check(err, "create texture sampler")
	}
	a.sampler = sampler
	a.scope.Defer("texture sampler", func() { a.GPU.Device.DestroySampler(sampler, nil) })

	a.logger.Info("texture uploaded", "size", tex.String())
	return nil
}

// createUniformBuffers makes one persistently mapped uniform buffer per frame slot.
func (a *App) createUniformBuffers() error {
	for i := 0; i < a.cfg.FramesInFlight; i++ {
		buffer, err := a.alloc.CreateBuffer(scene.UniformSize, core1_0.BufferUsageUniformBuffer,
			core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if buffer != nil {
			a.scope.Defer("uniform buffer", buffer.Destroy)
		}
		if err != nil {
			return errors.Wrapf(err, "slot %d", i)
		}

		if _, err := buffer.Map(); err != nil {
			return a.report.Check(err, "map uniform buffer for slot %d", i)
		}
		a.uniforms = append(a.uniforms, buffer)
	}
	return nil
}

func (a *App) createDescriptorSets() error {
	n := a.cfg.FramesInFlight

	var err error
	a.binder, err = descriptor.NewBinder(a.GPU.Device, n, a.cfg.Textured, a.report, a.logger)
	if a.binder != nil {
		a.scope.Defer("descriptor binder", a.binder.Destroy)
	}
	if err != nil {
		return err
	}

	a.sets, err = a.binder.Allocate(n)
	if err != nil {
		return err
	}

	handles := make([]core1_0.Buffer, len(a.uniforms))
	for i, buffer := range a.uniforms {
		handles[i] = buffer.Handle
	}

	return a.binder.Bind(a.sets, handles, scene.UniformSize, descriptor.Texture{
		View:    a.textureView,
		Sampler: a.sampler,
	})
}

func (a *App) createSwapchain() error {
	var err error
	a.swapchain, err = gpu.NewSwapchain(a.GPU)
	if err != nil {
		return err
	}
	a.scope.Defer("swapchain", a.swapchain.Destroy)

	a.renderPass, err = a.GPU.CreateRenderPass(a.swapchain.Format.Format)
	if err != nil {
		return err
	}

	return a.swapchain.CreateFramebuffers(a.renderPass)
}

func (a *App) createPipeline() error {
	var err error
	a.cache, err = pipeline.LoadCache(a.GPU.Device, a.cfg.PipelineCache, pipeline.IdentityOf(a.GPU.Physical.Properties), a.logger)
	if err != nil {
		return err
	}
	a.scope.Defer("pipeline cache", a.cache.Destroy)

	builder := pipeline.NewBuilder(a.GPU.Device, a.cache, a.report, a.logger)

	layout, err := builder.Layout(a.binder.Layout)
	if err != nil {
		return err
	}
	a.layout = layout
	a.scope.Defer("pipeline layout", func() { a.GPU.Device.DestroyPipelineLayout(layout, nil) })

	vert, err := builder.Shader(core1_0.StageVertex, a.assets.VertexShader)
	if err != nil {
		return err
	}
	frag, err := builder.Shader(core1_0.StageFragment, a.assets.FragmentShader)
	if err != nil {
		a.GPU.Device.DestroyShaderModule(vert.Module, nil)
		return err
	}

	desc := pipeline.NewDesc(scene.VertexBindings(), scene.VertexAttributes(), layout, a.renderPass)
	graphicsPipeline, err := builder.Build(desc, vert, frag)
	if err != nil {
		return err
	}
	a.pipeline = graphicsPipeline
	a.scope.Defer("graphics pipeline", func() { a.GPU.Device.DestroyPipeline(graphicsPipeline, nil) })

	if err := a.cache.Save(); err != nil {
		a.logger.Warn("pipeline cache not saved", "err", err)
	}
	return nil
}

func (a *App) createOrchestrator(sceneWriter frame.Scene) error {
	timeout, err := a.cfg.Timeout()
	if err != nil {
		return err
	}

	mapped := make([][]byte, len(a.uniforms))
	for i, buffer := range a.uniforms {
		mapped[i] = buffer.Mapped()
	}

	rec := &recorder{
		driver:       a.GPU.Device,
		report:       a.report,
		renderPass:   a.renderPass,
		framebuffers: a.swapchain.Framebuffers,
		pipeline:     a.pipeline,
		layout:       a.layout,
		vertices:     a.vertices.Handle,
		indices:      a.indices.Handle,
		indexType:    a.assets.Mesh.IndexType(),
		indexCount:   len(a.assets.Mesh.Indices),
		sets:         a.sets,
	}

	a.orchestrator, err = frame.New(a.GPU.FrameDevice(), a.swapchain, rec, sceneWriter, mapped, frame.Options{
		FramesInFlight: a.cfg.FramesInFlight,
		AcquireTimeout: timeout,
		Logger:         a.logger,
	})
	return err
}

// Frames is the orchestrator, for callers that drive frames themselves.
func (a *App) Frames() *frame.Orchestrator {
	return a.orchestrator
}

// Engine is the transfer engine used for uploads.
func (a *App) Engine() *transfer.Engine {
	return a.engine
}

// Run renders until the window closes, ctx is cancelled or a frame fails.
func (a *App) Run(ctx context.Context) error {
	if a.orchestrator == nil {
		return errors.Wrap(frame.ErrStopped, "renderer was not fully created")
	}
	return a.orchestrator.Run(ctx, a.GPU)
}

// Close drains the GPU and destroys everything in reverse creation order. Errors from the
// idle waits are returned; every object is destroyed regardless. Nothing is in flight outside
// the orchestrator, since uploads wait for the queue.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var err error
	if a.orchestrator != nil {
		err = errors.CombineErrors(err, a.orchestrator.Close())
	}
	if a.cache != nil {
		if saveErr := a.cache.Save(); saveErr != nil {
			a.logger.Warn("pipeline cache not saved", "err", saveErr)
		}
	}
	a.scope.Release()
	if a.GPU != nil {
		err = errors.CombineErrors(err, a.GPU.Close())
	}
	return err
}
