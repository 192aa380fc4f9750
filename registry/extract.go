package registry

import (
	"encoding/json"
	"log/slog"

	"github.com/mitchellh/mapstructure"

	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

// hfConfig lists every config.json spelling of the fields the estimator
// needs. Architectures disagree on names, so each field has fallbacks.
type hfConfig struct {
	NumHiddenLayers int `mapstructure:"num_hidden_layers"`
	NLayer          int `mapstructure:"n_layer"`
	NumLayers       int `mapstructure:"num_layers"`
	NLayers         int `mapstructure:"n_layers"`

	NumKeyValueHeads int `mapstructure:"num_key_value_heads"`
	NumKVHeads       int `mapstructure:"num_kv_heads"`
	KVHeads          int `mapstructure:"kv_heads"`

	NumAttentionHeads int `mapstructure:"num_attention_heads"`
	NHead             int `mapstructure:"n_head"`
	NumHeads          int `mapstructure:"num_heads"`

	HeadDim    int `mapstructure:"head_dim"`
	HiddenSize int `mapstructure:"hidden_size"`

	MaxPositionEmbeddings int `mapstructure:"max_position_embeddings"`
	MaxSeqLen             int `mapstructure:"max_seq_len"`
	NPositions            int `mapstructure:"n_positions"`
	ModelMaxLength        int `mapstructure:"model_max_length"`

	NumParameters float64 `mapstructure:"num_parameters"`

	QuantizationConfig *struct {
		QuantMethod string `mapstructure:"quant_method"`
		Method      string `mapstructure:"method"`
		Bits        int    `mapstructure:"bits"`
		WBit        int    `mapstructure:"w_bit"`
	} `mapstructure:"quantization_config"`
}

func first[T comparable](vs ...T) T {
	var zero T
	for _, v := range vs {
		if v != zero {
			return v
		}
	}

	return zero
}

func decodeConfig(config map[string]any) (hfConfig, error) {
	var c hfConfig
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return c, err
	}

	return c, d.Decode(config)
}

// Extract recovers architecture fields from hub metadata and a parsed
// config.json. Without a config only the model id is known.
func Extract(info HubModel, config map[string]any) ModelInfo {
	id := first(info.ID, info.ModelID)
	mi := ModelInfo{ModelID: id, Name: id}

	if config == nil {
		return mi
	}

	if info.Safetensors != nil && info.Safetensors.Total > 0 {
		mi.WeightsGB = float64(info.Safetensors.Total) / vram.GigaByte
	}

	c, err := decodeConfig(config)
	if err != nil {
		// fields that did decode are still usable
		slog.Debug("config.json has unexpected field types", "model", id, "error", err)
	}

	mi.NumLayers = first(c.NumHiddenLayers, c.NLayer, c.NumLayers, c.NLayers)
	mi.KVHeads = first(c.NumKeyValueHeads, c.NumKVHeads, c.KVHeads, c.NumAttentionHeads)
	mi.AttnHeads = first(c.NumAttentionHeads, c.NHead, c.NumHeads)

	mi.HeadDim = c.HeadDim
	if mi.HeadDim == 0 && c.HiddenSize > 0 && mi.AttnHeads > 0 {
		mi.HeadDim = c.HiddenSize / mi.AttnHeads
	}

	mi.MaxContextLength = first(c.MaxPositionEmbeddings, c.MaxSeqLen, c.NPositions, c.ModelMaxLength)

	if q := c.QuantizationConfig; q != nil {
		mi.QuantMethod = first(q.QuantMethod, q.Method)
		mi.QuantBits = first(q.Bits, q.WBit)
		mi.BaseParams = c.NumParameters / vram.GigaByte
	}

	return mi
}

// ModelInfo extracts the architecture fields of m. An unparseable config is
// treated as missing.
func (m *Model) ModelInfo() ModelInfo {
	var config map[string]any
	if len(m.Config) > 0 {
		if err := json.Unmarshal(m.Config, &config); err != nil {
			slog.Debug("ignoring unparseable config.json", "model", m.Info.ID, "error", err)
			config = nil
		}
	}

	return Extract(m.Info, config)
}

// Apply copies the known fields of mi over model and quant.
func (mi ModelInfo) Apply(model vram.ModelConfig, quant vram.QuantizationConfig) (vram.ModelConfig, vram.QuantizationConfig) {
	if mi.Name != "" {
		model.Name = mi.Name
	}
	if mi.WeightsGB > 0 {
		model.WeightsGB = mi.WeightsGB
	}
	if mi.NumLayers > 0 {
		model.NumLayers = mi.NumLayers
	}
	if mi.KVHeads > 0 {
		model.KVHeads = mi.KVHeads
	}
	if mi.HeadDim > 0 {
		model.HeadDim = mi.HeadDim
	}
	if mi.AttnHeads > 0 {
		model.AttnHeads = mi.AttnHeads
	}
	if mi.MaxContextLength > 0 {
		model.MaxContextLength = mi.MaxContextLength
	}

	if mi.QuantMethod != "" {
		quant.Method = mi.QuantMethod
	}
	if mi.QuantBits > 0 {
		quant.Bits = mi.QuantBits
	}
	if mi.BaseParams > 0 {
		quant.BaseParams = mi.BaseParams
	}

	return model, quant
}
