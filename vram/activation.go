package vram

// Activation is an advisory estimate of activation buffers and captured
// graph memory derived from the scheduler limits. Estimate does not consume
// it; the CLI and server report it next to the breakdown.
type Activation struct {
	HiddenSizePerGPU int     `json:"hidden_size_per_gpu"`
	Tokens           int     `json:"tokens"`
	BufferGB         float64 `json:"buffer_gb"`
	OverheadGB       float64 `json:"overhead_gb"`
	CUDAGraphsGB     float64 `json:"cuda_graphs_gb"`
}

// ActivationEstimate sizes one prefill step plus one decode step worth of
// hidden states on a single GPU.
func (c Calibration) ActivationEstimate(gpu GPUConfig, model ModelConfig, engine EngineConfig) Activation {
	attnHeads := model.AttnHeads
	if attnHeads == 0 {
		attnHeads = model.KVHeads
	}

	hidden := ceilDiv(attnHeads, gpu.NumGPUs) * model.HeadDim
	tokens := engine.MaxBatchedTokens + engine.MaxNumSeqs
	buffer := float64(tokens) * float64(hidden) * float64(activationDtypeBytes(engine.ActivationDtype)) / GigaByte

	a := Activation{
		HiddenSizePerGPU: hidden,
		Tokens:           tokens,
		BufferGB:         buffer,
		OverheadGB:       buffer * c.ActivationBuffers,
	}

	if engine.CUDAGraphs {
		a.CUDAGraphsGB = buffer * c.CUDAGraphMultiplier
	}

	return a
}

func activationDtypeBytes(dtype string) int {
	switch dtype {
	case "float32", "fp32":
		return 4
	default:
		return 2
	}
}
