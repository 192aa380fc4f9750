package vram

import (
	"fmt"
	"math"
)

// Calibration holds the empirical constants of the estimate. They are fudge
// factors fitted against observed vLLM deployments rather than derived from
// activation shapes, and should be revisited as the engine changes.
type Calibration struct {
	// Fixed per GPU reservation for captured CUDA graphs
	CUDAGraphsGB float64

	// Activation heuristic, see ActivationEstimate
	ActivationBuffers   float64
	CUDAGraphMultiplier float64

	// Usage above this percentage produces a headroom warning
	HighUsagePercent float64
}

var DefaultCalibration = Calibration{
	CUDAGraphsGB:        2.5,
	ActivationBuffers:   2,
	CUDAGraphMultiplier: 10,
	HighUsagePercent:    95,
}

// Estimate computes the per GPU breakdown using DefaultCalibration.
func Estimate(gpu GPUConfig, model ModelConfig, quant QuantizationConfig, engine EngineConfig) Result {
	return DefaultCalibration.Estimate(gpu, model, quant, engine)
}

// Estimate computes the per GPU memory breakdown for serving model on gpu
// with engine. Inputs must already satisfy the documented minimums (see the
// Normalize methods); an infeasible configuration is reported through
// Result.IsOverCapacity, never as an error.
func (c Calibration) Estimate(gpu GPUConfig, model ModelConfig, _ QuantizationConfig, engine EngineConfig) Result {
	availableBytes := gpu.VRAMGB * GigaByte * gpu.Utilization
	weightsBytes := model.WeightsGB / float64(gpu.NumGPUs) * GigaByte

	var graphsGB float64
	if engine.CUDAGraphs {
		graphsGB = c.CUDAGraphsGB
	}
	graphsBytes := graphsGB * GigaByte
	overheadBytes := engine.OverheadPadding * GigaByte

	// heads can't be split, so the division rounds up
	kvHeadsPerGPU := ceilDiv(model.KVHeads, gpu.NumGPUs)
	bytesPerToken := int64(2*kvHeadsPerGPU*model.HeadDim*KVCacheDtypeBytes(engine.KVCacheDtype)) * int64(model.NumLayers)
	bytesPerSeq := bytesPerToken * int64(engine.MaxModelLen)

	r := Result{
		AvailableVRAMPerGPU: availableBytes / GigaByte,
		WeightsPerGPU:       weightsBytes / GigaByte,
		CUDAGraphsMemory:    graphsGB,
		OverheadMemory:      engine.OverheadPadding,
		KVHeadsPerGPU:       kvHeadsPerGPU,
		KVBytesPerToken:     bytesPerToken,
		KVBytesPerSeq:       bytesPerSeq,
	}

	kvAvailableBytes := availableBytes - weightsBytes - graphsBytes - overheadBytes
	if kvAvailableBytes <= 0 {
		r.UsedMemory = (weightsBytes + graphsBytes + overheadBytes) / GigaByte
		r.FreeMemory = kvAvailableBytes / GigaByte
		r.MemoryUsagePercent = 100
		r.IsOverCapacity = true
		r.Warnings = []string{"Model weights exceed available VRAM. Reduce model size or increase GPU count."}
		return r
	}

	maxTokens := int64(math.Floor(kvAvailableBytes / float64(bytesPerToken)))
	maxSeqs := maxTokens / int64(engine.MaxModelLen)

	// vLLM reserves the whole pool at startup, so allocation follows the
	// number of sequences that fit rather than instantaneous load
	seqs := int(min(maxSeqs, int64(engine.MaxNumSeqs)))
	kvBytes := float64(seqs) * float64(bytesPerSeq)

	usedBytes := weightsBytes + graphsBytes + overheadBytes + kvBytes
	freeBytes := availableBytes - usedBytes

	r.TotalKVCacheMemory = kvBytes / GigaByte
	r.MaxTokensForKV = maxTokens
	r.MaxConcurrentSequences = seqs
	r.TotalBatchedTokens = int(min(int64(engine.MaxBatchedTokens), int64(seqs)*int64(engine.MaxModelLen)))
	r.ContextPerSequence = int(maxTokens / int64(engine.MaxNumSeqs))
	r.UsedMemory = usedBytes / GigaByte
	r.FreeMemory = freeBytes / GigaByte
	r.MemoryUsagePercent = usedBytes / availableBytes * 100

	r.Warnings = []string{}
	if seqs < engine.MaxNumSeqs {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"KV cache can only fit %d sequences (you requested %d). Consider reducing max_model_len or increasing GPU memory.",
			seqs, engine.MaxNumSeqs))
	}

	if r.MemoryUsagePercent > c.HighUsagePercent {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"Memory usage is very high (>%g%%). Consider reducing batch size or context length.", c.HighUsagePercent))
	}

	if kvHeadsPerGPU*gpu.NumGPUs > model.KVHeads {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"With %d GPUs, some GPUs will have %d KV heads while the model has %d. This may cause slight imbalance.",
			gpu.NumGPUs, kvHeadsPerGPU, model.KVHeads))
	}

	r.Command = Command(gpu, model, engine, seqs, r.TotalBatchedTokens)
	return r
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
