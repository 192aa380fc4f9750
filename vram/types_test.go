package vram

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGPUConfigNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   GPUConfig
		want GPUConfig
	}{
		{"valid", GPUConfig{VRAMGB: 34.2, NumGPUs: 2, Utilization: 0.9}, GPUConfig{VRAMGB: 34.2, NumGPUs: 2, Utilization: 0.9}},
		{"nan vram", GPUConfig{VRAMGB: math.NaN(), NumGPUs: 1, Utilization: 0.9}, GPUConfig{VRAMGB: 0, NumGPUs: 1, Utilization: 0.9}},
		{"zero gpus", GPUConfig{VRAMGB: 24, NumGPUs: 0, Utilization: 0.9}, GPUConfig{VRAMGB: 24, NumGPUs: 1, Utilization: 0.9}},
		{"zero utilization", GPUConfig{VRAMGB: 24, NumGPUs: 1}, GPUConfig{VRAMGB: 24, NumGPUs: 1, Utilization: DefaultUtilization}},
		{"utilization above one", GPUConfig{VRAMGB: 24, NumGPUs: 1, Utilization: 1.5}, GPUConfig{VRAMGB: 24, NumGPUs: 1, Utilization: 1}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestModelConfigNormalize(t *testing.T) {
	m := ModelConfig{WeightsGB: -1, KVHeads: 8}.Normalize()
	assert.Equal(t, ModelConfig{WeightsGB: 0, NumLayers: 1, KVHeads: 8, HeadDim: 1, AttnHeads: 8}, m)
}

func TestEngineConfigNormalize(t *testing.T) {
	e := EngineConfig{KVCacheDtype: " FP8 ", OverheadPadding: math.Inf(1)}.Normalize()
	assert.Equal(t, EngineConfig{MaxModelLen: 1, MaxNumSeqs: 1, MaxBatchedTokens: 1, KVCacheDtype: KVCacheDtypeFP8}, e)

	e = EngineConfig{MaxModelLen: 4096, MaxNumSeqs: 8, MaxBatchedTokens: 2048}.Normalize()
	assert.Equal(t, KVCacheDtypeAuto, e.KVCacheDtype)
}

func TestKVCacheDtypeBytes(t *testing.T) {
	assert.Equal(t, 1, KVCacheDtypeBytes("fp8"))
	assert.Equal(t, 2, KVCacheDtypeBytes("auto"))
	assert.Equal(t, 2, KVCacheDtypeBytes(""))
}

func TestQuantizationWeightsGB(t *testing.T) {
	q := QuantizationConfig{Method: "awq", Bits: 4, BaseParams: 80, ScaleOverhead: 0.1}
	assert.InDelta(t, 44.0, q.WeightsGB(), 1e-9)

	q = QuantizationConfig{Method: "none", Bits: 16, BaseParams: 8}
	assert.InDelta(t, 16.0, q.WeightsGB(), 1e-9)

	assert.Zero(t, QuantizationConfig{Bits: 4}.WeightsGB())
}
