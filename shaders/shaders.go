// Package shaders holds the GLSL sources for the renderer. The SPIR-V files the renderer loads
// are built from them with glslc from the Vulkan SDK.
package shaders

//go:generate glslc shader.vert -o vert.spv
//go:generate glslc shader.frag -o frag.spv
//go:generate glslc shader_untextured.frag -o frag_untextured.spv
