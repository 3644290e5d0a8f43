// Package descriptor allocates one descriptor set per frame slot from a pool sized for exactly
// that many sets and points each set at its slot's uniform buffer and the shared texture.
package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

const (
	UniformBinding = 0
	SamplerBinding = 1
)

// LayoutInfo describes the set layout: the uniform buffer for the vertex stage, plus a combined
// image sampler for the fragment stage when textured.
func LayoutInfo(textured bool) core1_0.DescriptorSetLayoutCreateInfo {
	bindings := []core1_0.DescriptorSetLayoutBinding{
		{
			Binding:         UniformBinding,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,

			StageFlags: core1_0.StageVertex,
		},
	}

	if textured {
		bindings = append(bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         SamplerBinding,
			DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,

			StageFlags: core1_0.StageFragment,
		})
	}

	return core1_0.DescriptorSetLayoutCreateInfo{Bindings: bindings}
}

// PoolInfo sizes a pool for n sets and n descriptors of every binding type in the layout.
func PoolInfo(n int, textured bool) core1_0.DescriptorPoolCreateInfo {
	sizes := []core1_0.DescriptorPoolSize{
		{
			Type:            core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: n,
		},
	}

	if textured {
		sizes = append(sizes, core1_0.DescriptorPoolSize{
			Type:            core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: n,
		})
	}

	return core1_0.DescriptorPoolCreateInfo{
		MaxSets:   n,
		PoolSizes: sizes,
	}
}

// CheckCapacity fails when more sets are requested than the pool was created for. The pool
// never grows, and drivers disagree on what an over-allocation does, so this is a
// configuration bug.
func CheckCapacity(requested, capacity int) error {
	if requested < 0 || requested > capacity {
		return errors.Wrapf(vkerr.ErrPoolExhausted, "requested %d sets from a pool of %d", requested, capacity)
	}
	return nil
}

// Texture is the shared image view and sampler bound at SamplerBinding.
type Texture struct {
	View    core1_0.ImageView
	Sampler core1_0.Sampler
}

// Binder owns a set layout and a fixed capacity pool.
type Binder struct {
	driver   core1_0.CoreDeviceDriver
	Layout   core1_0.DescriptorSetLayout
	Pool     core1_0.DescriptorPool
	capacity int
	textured bool
	report   vkerr.Reporter
	logger   *slog.Logger
}

// NewBinder creates the layout and a pool with room for capacity sets. On failure the binder is
// still returned so Destroy can release what was created.
func NewBinder(driver core1_0.CoreDeviceDriver, capacity int, textured bool, report vkerr.Reporter, logger *slog.Logger) (*Binder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Binder{
		driver:   driver,
		capacity: capacity,
		textured: textured,
		report:   report,
		logger:   logger,
	}

	var err error
	b.Layout, _, err = driver.CreateDescriptorSetLayout(nil, LayoutInfo(textured))
	if err != nil {
		return b, report.Check(err, "create descriptor set layout")
	}

	b.Pool, _, err = driver.CreateDescriptorPool(nil, PoolInfo(capacity, textured))
	if err != nil {
		return b, report.Check(err, "create descriptor pool of %d sets", capacity)
	}

	return b, nil
}

func (b *Binder) Capacity() int {
	return b.capacity
}

// Allocate returns exactly n sets. Sets are never freed individually; they go away with the pool.
func (b *Binder) Allocate(n int) ([]core1_0.DescriptorSet, error) {
	if err := CheckCapacity(n, b.capacity); err != nil {
		return nil, b.report.Check(err, "allocate descriptor sets")
	}

	layouts := make([]core1_0.DescriptorSetLayout, n)
	for i := range layouts {
		layouts[i] = b.Layout
	}

	sets, _, err := b.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: b.Pool,
		SetLayouts:     layouts,
	})
	if err != nil {
		return nil, b.report.Check(err, "allocate %d descriptor sets", n)
	}

	b.logger.Debug("descriptor sets allocated", "count", n)
	return sets, nil
}

// Writes builds the descriptor writes for one set: the uniform range always, and the texture
// when the binder is textured.
func (b *Binder) Writes(set core1_0.DescriptorSet, uniform core1_0.Buffer, uniformSize int, texture Texture) []core1_0.WriteDescriptorSet {
	return writes(set, uniform, uniformSize, b.textured, texture)
}

func writes(set core1_0.DescriptorSet, uniform core1_0.Buffer, uniformSize int, textured bool, texture Texture) []core1_0.WriteDescriptorSet {
	out := []core1_0.WriteDescriptorSet{
		{
			DstSet:          set,
			DstBinding:      UniformBinding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: uniform,
					Offset: 0,
					Range:  uniformSize,
				},
			},
		},
	}

	if textured {
		out = append(out, core1_0.WriteDescriptorSet{
			DstSet:          set,
			DstBinding:      SamplerBinding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   texture.View,
					Sampler:     texture.Sampler,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		})
	}

	return out
}

// Bind points sets[i] at uniforms[i]. Both slices are indexed by frame slot.
func (b *Binder) Bind(sets []core1_0.DescriptorSet, uniforms []core1_0.Buffer, uniformSize int, texture Texture) error {
	if len(sets) != len(uniforms) {
		return errors.Newf("%d descriptor sets for %d uniform buffers", len(sets), len(uniforms))
	}

	for i, set := range sets {
		err := b.driver.UpdateDescriptorSets(b.Writes(set, uniforms[i], uniformSize, texture), nil)
		if err != nil {
			return b.report.Check(err, "update descriptor set for slot %d", i)
		}
	}
	return nil
}

// Destroy frees the pool, which frees every set allocated from it, and then the layout.
func (b *Binder) Destroy() {
	if b.Pool.Initialized() {
		b.driver.DestroyDescriptorPool(b.Pool, nil)
		b.Pool = core1_0.DescriptorPool{}
	}
	if b.Layout.Initialized() {
		b.driver.DestroyDescriptorSetLayout(b.Layout, nil)
		b.Layout = core1_0.DescriptorSetLayout{}
	}
}
