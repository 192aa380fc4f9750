package presets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

func TestBuiltin(t *testing.T) {
	c := Builtin()

	assert.Len(t, c.GPUs, 12)
	assert.Len(t, c.Models, 4)
	assert.Len(t, c.Quantizations, 6)

	assert.Equal(t, vram.GPUConfig{VRAMGB: 34.2, NumGPUs: 2, Utilization: 0.9}, c.Defaults.GPU)
	assert.Equal(t, vram.EngineConfig{
		MaxModelLen:      16384,
		MaxNumSeqs:       256,
		MaxBatchedTokens: 8192,
		KVCacheDtype:     "auto",
		ActivationDtype:  "auto",
		CUDAGraphs:       true,
		OverheadPadding:  1,
	}, c.Defaults.Engine)
	assert.Equal(t, 128, c.Defaults.Quant.GroupSize)
}

func TestLookup(t *testing.T) {
	c := Builtin()

	g, ok := c.GPU("h100 (80gb)")
	require.True(t, ok)
	assert.InDelta(t, 85.9, g.VRAMGB, 1e-9)

	_, ok = c.GPU("Voodoo 2")
	assert.False(t, ok)

	q, ok := c.Quantization("GPTQ-Marlin")
	require.True(t, ok)
	assert.Equal(t, 4, q.Bits)
	assert.True(t, q.HasScales)
	assert.InDelta(t, 0.05, q.ScaleOverhead, 1e-9)
}

func TestConfigs(t *testing.T) {
	c := Builtin()

	m, ok := c.Model("HyperNova-60B")
	require.True(t, ok)

	model, quant := c.Configs(m)
	assert.Equal(t, vram.ModelConfig{
		Name:             "HyperNova-60B",
		WeightsGB:        42,
		NumLayers:        80,
		KVHeads:          8,
		HeadDim:          128,
		AttnHeads:        64,
		MaxContextLength: 131072,
	}, model)
	assert.Equal(t, "awq", quant.Method)
	assert.Equal(t, 4, quant.Bits)
	assert.InDelta(t, 44.0, quant.WeightsGB(), 1e-9)
}

func TestParseRejectsEmptyGPU(t *testing.T) {
	_, err := Parse([]byte("gpus:\n  - name: broken\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("gpus: [\n"))
	assert.Error(t, err)
}
