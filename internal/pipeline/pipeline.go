// Package pipeline turns a static description of fixed-function state and shader stages into an
// immutable graphics pipeline.
package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

// Bytecode converts a SPIR-V blob into little endian words. The blob must be a non-empty
// sequence of 4-byte words.
func Bytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Wrapf(vkerr.ErrBadBytecode, "%d bytes", len(b))
	}

	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = common.ByteOrder.Uint32(b[i*4:])
	}
	return code, nil
}

// Shader is a compiled module for a single stage. Modules only live until Build returns.
type Shader struct {
	Stage  core1_0.ShaderStageFlags
	Module core1_0.ShaderModule
}

// Desc is the complete input to a graphics pipeline. The five fixed-function states are set
// independently; viewport and scissor values are always supplied at record time.
type Desc struct {
	VertexInput   *core1_0.PipelineVertexInputStateCreateInfo
	InputAssembly *core1_0.PipelineInputAssemblyStateCreateInfo
	Viewport      *core1_0.PipelineViewportStateCreateInfo
	Rasterization *core1_0.PipelineRasterizationStateCreateInfo
	Multisample   *core1_0.PipelineMultisampleStateCreateInfo
	ColorBlend    *core1_0.PipelineColorBlendStateCreateInfo

	Layout     core1_0.PipelineLayout
	RenderPass core1_0.RenderPass
}

// DynamicStates are left out of the baked pipeline and must be set in every command buffer.
var DynamicStates = []core1_0.DynamicState{
	core1_0.DynamicStateViewport,
	core1_0.DynamicStateScissor,
}

// NewDesc fills in the defaults for a single-sampled, opaque, back-face culled triangle list.
func NewDesc(bindings []core1_0.VertexInputBindingDescription, attributes []core1_0.VertexInputAttributeDescription, layout core1_0.PipelineLayout, renderPass core1_0.RenderPass) Desc {
	return Desc{
		VertexInput: &core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions:   bindings,
			VertexAttributeDescriptions: attributes,
		},
		InputAssembly: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               core1_0.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: false,
		},
		// One placeholder each: the values come from CmdSetViewport/CmdSetScissor.
		Viewport: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{}},
			Scissors:  []core1_0.Rect2D{{}},
		},
		Rasterization: &core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        false,
			RasterizerDiscardEnable: false,

			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   core1_0.FrontFaceCounterClockwise,

			DepthBiasEnable: false,

			LineWidth: 1.0,
		},
		Multisample: &core1_0.PipelineMultisampleStateCreateInfo{
			SampleShadingEnable:  false,
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		ColorBlend: &core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: false,
			LogicOp:        core1_0.LogicOpCopy,

			BlendConstants: [4]float32{0, 0, 0, 0},
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					BlendEnabled:   false,
					ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		},
		Layout:     layout,
		RenderPass: renderPass,
	}
}

func (d Desc) validate() error {
	switch {
	case d.VertexInput == nil:
		return errors.New("pipeline description has no vertex input state")
	case d.InputAssembly == nil:
		return errors.New("pipeline description has no input assembly state")
	case d.Viewport == nil:
		return errors.New("pipeline description has no viewport state")
	case d.Rasterization == nil:
		return errors.New("pipeline description has no rasterization state")
	case d.Multisample == nil:
		return errors.New("pipeline description has no multisample state")
	case d.ColorBlend == nil:
		return errors.New("pipeline description has no color blend state")
	}
	return nil
}

// CreateInfo assembles the create info for the given shader stages.
func (d Desc) CreateInfo(shaders []Shader) core1_0.GraphicsPipelineCreateInfo {
	stages := make([]core1_0.PipelineShaderStageCreateInfo, 0, len(shaders))
	for _, shader := range shaders {
		stages = append(stages, core1_0.PipelineShaderStageCreateInfo{
			Stage:  shader.Stage,
			Module: shader.Module,
			Name:   "main",
		})
	}

	return core1_0.GraphicsPipelineCreateInfo{
		Stages:             stages,
		VertexInputState:   d.VertexInput,
		InputAssemblyState: d.InputAssembly,
		ViewportState:      d.Viewport,
		RasterizationState: d.Rasterization,
		MultisampleState:   d.Multisample,
		ColorBlendState:    d.ColorBlend,
		DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: DynamicStates,
		},
		Layout:            d.Layout,
		RenderPass:        d.RenderPass,
		Subpass:           0,
		BasePipelineIndex: -1,
	}
}

// Builder creates shader modules, layouts and pipelines on one device.
type Builder struct {
	driver core1_0.CoreDeviceDriver
	cache  *Cache
	report vkerr.Reporter
	logger *slog.Logger
}

// NewBuilder returns a builder. cache may be nil.
func NewBuilder(driver core1_0.CoreDeviceDriver, cache *Cache, report vkerr.Reporter, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		driver: driver,
		cache:  cache,
		report: report,
		logger: logger,
	}
}

// Shader compiles SPIR-V bytes into a module for stage.
func (b *Builder) Shader(stage core1_0.ShaderStageFlags, spirv []byte) (Shader, error) {
	code, err := Bytecode(spirv)
	if err != nil {
		return Shader{}, b.report.Check(err, "load %s shader", stage)
	}

	module, _, err := b.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return Shader{}, b.report.Check(err, "create %s shader module", stage)
	}
	return Shader{Stage: stage, Module: module}, nil
}

// Layout creates a pipeline layout over the given descriptor set layouts.
func (b *Builder) Layout(setLayouts ...core1_0.DescriptorSetLayout) (core1_0.PipelineLayout, error) {
	layout, _, err := b.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: setLayouts,
	})
	if err != nil {
		return core1_0.PipelineLayout{}, b.report.Check(err, "create pipeline layout")
	}
	return layout, nil
}

// Build creates the pipeline and then destroys every shader module, whether or not creation
// succeeded.
func (b *Builder) Build(desc Desc, shaders ...Shader) (core1_0.Pipeline, error) {
	defer func() {
		for _, shader := range shaders {
			if shader.Module.Initialized() {
				b.driver.DestroyShaderModule(shader.Module, nil)
			}
		}
	}()

	if err := desc.validate(); err != nil {
		return core1_0.Pipeline{}, b.report.Check(err, "build pipeline")
	}

	var cache *core1_0.PipelineCache
	if b.cache != nil && b.cache.Handle.Initialized() {
		cache = &b.cache.Handle
	}

	pipelines, _, err := b.driver.CreateGraphicsPipelines(cache, nil, desc.CreateInfo(shaders))
	if err != nil {
		return core1_0.Pipeline{}, b.report.Check(err, "create graphics pipeline")
	}

	b.logger.Debug("graphics pipeline created", "stages", len(shaders), "cached", cache != nil)
	return pipelines[0], nil
}
