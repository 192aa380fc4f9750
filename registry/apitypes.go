package registry

import "encoding/json"

// HubModel is the subset of the hub's /api/models/{id} response that is used.
type HubModel struct {
	ID          string       `json:"id" cbor:"id"`
	ModelID     string       `json:"modelId,omitempty" cbor:"model_id,omitempty"`
	Gated       any          `json:"gated,omitempty" cbor:"-"`
	Safetensors *Safetensors `json:"safetensors,omitempty" cbor:"safetensors,omitempty"`
}

type Safetensors struct {
	Parameters map[string]int64 `json:"parameters,omitempty" cbor:"parameters,omitempty"`
	Total      int64            `json:"total" cbor:"total"`
}

// Model is the raw metadata fetched for one model id. Config is nil when the
// repository has no readable config.json.
type Model struct {
	Info   HubModel        `json:"info" cbor:"info"`
	Config json.RawMessage `json:"config,omitempty" cbor:"config,omitempty"`
}

// ModelInfo holds the architecture fields recovered from a Model. Zero
// values mean the field could not be determined.
type ModelInfo struct {
	ModelID          string  `json:"model_id"`
	Name             string  `json:"name,omitempty"`
	WeightsGB        float64 `json:"weights_gb,omitempty"`
	NumLayers        int     `json:"num_layers,omitempty"`
	KVHeads          int     `json:"kv_heads,omitempty"`
	HeadDim          int     `json:"head_dim,omitempty"`
	AttnHeads        int     `json:"attn_heads,omitempty"`
	MaxContextLength int     `json:"max_context_length,omitempty"`
	QuantMethod      string  `json:"quant_method,omitempty"`
	QuantBits        int     `json:"quant_bits,omitempty"`
	BaseParams       float64 `json:"base_params,omitempty"`
}
