package vram

import (
	"math"
	"strings"
)

// GigaByte is the decimal gigabyte used for every GB quantity in this
// package. Accelerator vendors label VRAM in decimal units, so 2^30 must not
// be substituted here.
const GigaByte = 1_000_000_000

type GPUConfig struct {
	// VRAM per accelerator in decimal GB
	VRAMGB float64 `json:"vram_gb" yaml:"vram_gb" cbor:"vram_gb"`

	// Tensor parallel degree
	NumGPUs int `json:"num_gpus" yaml:"num_gpus" cbor:"num_gpus"`

	// Fraction of VRAM the engine may claim, in (0, 1]
	Utilization float64 `json:"utilization" yaml:"utilization" cbor:"utilization"`
}

type ModelConfig struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty" cbor:"name,omitempty"`

	// Serialized weight size summed across all GPUs, decimal GB
	WeightsGB float64 `json:"weights_gb" yaml:"weights_gb" cbor:"weights_gb"`
	NumLayers int     `json:"num_layers" yaml:"num_layers" cbor:"num_layers"`

	// KVHeads may be smaller than AttnHeads under grouped-query attention.
	KVHeads   int `json:"kv_heads" yaml:"kv_heads" cbor:"kv_heads"`
	HeadDim   int `json:"head_dim" yaml:"head_dim" cbor:"head_dim"`
	AttnHeads int `json:"attn_heads" yaml:"attn_heads" cbor:"attn_heads"`

	MaxContextLength int `json:"max_context_length,omitempty" yaml:"max_context_length,omitempty" cbor:"max_context_length,omitempty"`
}

// QuantizationConfig labels the weight quantization scheme. It does not take
// part in the KV cache arithmetic.
type QuantizationConfig struct {
	Method     string  `json:"method" yaml:"method" cbor:"method"`
	Bits       int     `json:"bits" yaml:"bits" cbor:"bits"`
	BaseParams float64 `json:"base_params" yaml:"base_params" cbor:"base_params"`
	GroupSize  int     `json:"group_size" yaml:"group_size" cbor:"group_size"`

	// ScaleOverhead is the fractional size added by per-group scales and
	// zero points.
	ScaleOverhead float64 `json:"scale_overhead,omitempty" yaml:"scale_overhead,omitempty" cbor:"scale_overhead,omitempty"`
}

// WeightsGB derives a serialized weight size from the parameter count and
// bit width. It returns 0 when either is unknown.
func (q QuantizationConfig) WeightsGB() float64 {
	if q.BaseParams <= 0 || q.Bits <= 0 {
		return 0
	}

	return q.BaseParams * float64(q.Bits) / 8 * (1 + q.ScaleOverhead)
}

// EngineConfig holds the serving engine tunables.
type EngineConfig struct {
	MaxModelLen      int `json:"max_model_len" yaml:"max_model_len" cbor:"max_model_len"`
	MaxNumSeqs       int `json:"max_num_seqs" yaml:"max_num_seqs" cbor:"max_num_seqs"`
	MaxBatchedTokens int `json:"max_batched_tokens" yaml:"max_batched_tokens" cbor:"max_batched_tokens"`

	// "auto" or "fp8"
	KVCacheDtype    string `json:"kv_cache_dtype" yaml:"kv_cache_dtype" cbor:"kv_cache_dtype"`
	ActivationDtype string `json:"activation_dtype,omitempty" yaml:"activation_dtype,omitempty" cbor:"activation_dtype,omitempty"`

	CUDAGraphs bool `json:"cuda_graphs" yaml:"cuda_graphs" cbor:"cuda_graphs"`

	// Operator supplied safety margin, decimal GB
	OverheadPadding float64 `json:"overhead_padding" yaml:"overhead_padding" cbor:"overhead_padding"`
}

const (
	KVCacheDtypeAuto = "auto"
	KVCacheDtypeFP8  = "fp8"
)

// KVCacheDtypeBytes returns the bytes per cached K or V element.
func KVCacheDtypeBytes(dtype string) int {
	if dtype == KVCacheDtypeFP8 {
		return 1
	}

	return 2
}

// Result is the per GPU capacity breakdown. Memory figures are decimal GB.
type Result struct {
	AvailableVRAMPerGPU float64 `json:"available_vram_per_gpu"`
	WeightsPerGPU       float64 `json:"weights_per_gpu"`
	CUDAGraphsMemory    float64 `json:"cuda_graphs_memory"`
	OverheadMemory      float64 `json:"overhead_memory"`

	KVHeadsPerGPU      int     `json:"kv_heads_per_gpu"`
	KVBytesPerToken    int64   `json:"kv_bytes_per_token"`
	KVBytesPerSeq      int64   `json:"kv_bytes_per_seq"`
	TotalKVCacheMemory float64 `json:"total_kv_cache_memory"`
	MaxTokensForKV     int64   `json:"max_tokens_for_kv"`

	// MaxConcurrentSequences is already clamped to the requested max_num_seqs.
	MaxConcurrentSequences int `json:"max_concurrent_sequences"`
	TotalBatchedTokens     int `json:"total_batched_tokens"`
	ContextPerSequence     int `json:"context_per_sequence"`

	UsedMemory         float64  `json:"used_memory"`
	FreeMemory         float64  `json:"free_memory"`
	MemoryUsagePercent float64  `json:"memory_usage_percent"`
	IsOverCapacity     bool     `json:"is_over_capacity"`
	Warnings           []string `json:"warnings"`

	Command string `json:"command"`
}

// Normalize clamps g to the ranges the estimator expects. Unparseable VRAM
// becomes 0 and an unusable GPU count becomes 1.
func (g GPUConfig) Normalize() GPUConfig {
	if math.IsNaN(g.VRAMGB) || math.IsInf(g.VRAMGB, 0) || g.VRAMGB < 0 {
		g.VRAMGB = 0
	}

	g.NumGPUs = max(g.NumGPUs, 1)

	switch {
	case math.IsNaN(g.Utilization) || g.Utilization <= 0:
		g.Utilization = DefaultUtilization
	case g.Utilization > 1:
		g.Utilization = 1
	}

	return g
}

// DefaultUtilization matches vLLM's --gpu-memory-utilization default.
const DefaultUtilization = 0.90

func (m ModelConfig) Normalize() ModelConfig {
	if math.IsNaN(m.WeightsGB) || math.IsInf(m.WeightsGB, 0) || m.WeightsGB < 0 {
		m.WeightsGB = 0
	}

	m.NumLayers = max(m.NumLayers, 1)
	m.KVHeads = max(m.KVHeads, 1)
	m.HeadDim = max(m.HeadDim, 1)
	m.AttnHeads = max(m.AttnHeads, m.KVHeads)
	m.MaxContextLength = max(m.MaxContextLength, 0)
	return m
}

func (e EngineConfig) Normalize() EngineConfig {
	e.MaxModelLen = max(e.MaxModelLen, 1)
	e.MaxNumSeqs = max(e.MaxNumSeqs, 1)
	e.MaxBatchedTokens = max(e.MaxBatchedTokens, 1)

	e.KVCacheDtype = strings.ToLower(strings.TrimSpace(e.KVCacheDtype))
	if e.KVCacheDtype == "" {
		e.KVCacheDtype = KVCacheDtypeAuto
	}

	if math.IsNaN(e.OverheadPadding) || math.IsInf(e.OverheadPadding, 0) || e.OverheadPadding < 0 {
		e.OverheadPadding = 0
	}

	return e
}
