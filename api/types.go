package api

import (
	"time"

	"github.com/taylorelley/vllm-vram-calc.github.io/presets"
	"github.com/taylorelley/vllm-vram-calc.github.io/registry"
	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

// EstimateRequest is the request passed to [Client.Estimate]. Missing
// sections take the built in defaults.
type EstimateRequest struct {
	GPU    *vram.GPUConfig          `json:"gpu,omitempty"`
	Model  *vram.ModelConfig        `json:"model,omitempty"`
	Quant  *vram.QuantizationConfig `json:"quant,omitempty"`
	Engine *vram.EngineConfig       `json:"engine,omitempty"`
}

// EstimateResponse is the response returned by [Client.Estimate].
type EstimateResponse struct {
	Result     vram.Result     `json:"result"`
	Activation vram.Activation `json:"activation"`
}

// LookupResponse is the response returned by [Client.Lookup].
type LookupResponse struct {
	Model registry.ModelInfo `json:"model"`
}

// PresetsResponse is the response returned by [Client.Presets].
type PresetsResponse = presets.Catalog

// ConfigRequest is the configuration stored by [Client.SaveConfig].
type ConfigRequest struct {
	GPU    vram.GPUConfig          `json:"gpu"`
	Model  vram.ModelConfig        `json:"model"`
	Quant  vram.QuantizationConfig `json:"quant"`
	Engine vram.EngineConfig       `json:"engine"`
}

// ConfigResponse is the saved configuration returned by [Client.Config].
type ConfigResponse struct {
	ConfigRequest
	SavedAt time.Time `json:"saved_at"`
}

type VersionResponse struct {
	Version string `json:"version"`
}
