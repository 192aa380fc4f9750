package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

func TestExtract(t *testing.T) {
	info := HubModel{ID: "org/model", Safetensors: &Safetensors{Total: 8_000_000_000}}

	cases := []struct {
		name   string
		config map[string]any
		want   ModelInfo
	}{
		{
			name:   "no config",
			config: nil,
			want:   ModelInfo{ModelID: "org/model", Name: "org/model"},
		},
		{
			name: "llama names",
			config: map[string]any{
				"num_hidden_layers":       32.0,
				"num_key_value_heads":     8.0,
				"num_attention_heads":     32.0,
				"hidden_size":             4096.0,
				"max_position_embeddings": 8192.0,
			},
			want: ModelInfo{ModelID: "org/model", Name: "org/model", WeightsGB: 8, NumLayers: 32, KVHeads: 8, HeadDim: 128, AttnHeads: 32, MaxContextLength: 8192},
		},
		{
			name: "gpt2 names",
			config: map[string]any{
				"n_layer":     12.0,
				"n_head":      12.0,
				"n_positions": 1024.0,
				"head_dim":    64.0,
			},
			want: ModelInfo{ModelID: "org/model", Name: "org/model", WeightsGB: 8, NumLayers: 12, HeadDim: 64, AttnHeads: 12, MaxContextLength: 1024},
		},
		{
			name: "kv heads fall back to attention heads",
			config: map[string]any{
				"num_layers":          24.0,
				"num_attention_heads": 16.0,
				"model_max_length":    "4096",
			},
			want: ModelInfo{ModelID: "org/model", Name: "org/model", WeightsGB: 8, NumLayers: 24, KVHeads: 16, AttnHeads: 16, MaxContextLength: 4096},
		},
		{
			name: "quantized",
			config: map[string]any{
				"n_layers":       40.0,
				"num_kv_heads":   4.0,
				"num_heads":      40.0,
				"num_parameters": 13e9,
				"quantization_config": map[string]any{
					"method": "gptq",
					"w_bit":  4.0,
				},
			},
			want: ModelInfo{ModelID: "org/model", Name: "org/model", WeightsGB: 8, NumLayers: 40, KVHeads: 4, AttnHeads: 40, QuantMethod: "gptq", QuantBits: 4, BaseParams: 13},
		},
		{
			name: "bad field types keep the rest",
			config: map[string]any{
				"num_hidden_layers":   map[string]any{"text": 12.0},
				"num_attention_heads": 8.0,
			},
			want: ModelInfo{ModelID: "org/model", Name: "org/model", WeightsGB: 8, KVHeads: 8, AttnHeads: 8},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(info, tt.config))
		})
	}
}

func TestModelInfoUnparseableConfig(t *testing.T) {
	m := Model{Info: HubModel{ModelID: "legacy/model"}, Config: []byte("{")}
	assert.Equal(t, ModelInfo{ModelID: "legacy/model", Name: "legacy/model"}, m.ModelInfo())
}

func TestApply(t *testing.T) {
	model := vram.ModelConfig{Name: "old", WeightsGB: 42, NumLayers: 80, KVHeads: 8, HeadDim: 128, AttnHeads: 64}
	quant := vram.QuantizationConfig{Method: "awq", Bits: 4, BaseParams: 80, GroupSize: 128}

	mi := ModelInfo{Name: "org/new", NumLayers: 32, KVHeads: 4, QuantMethod: "gptq"}
	m, q := mi.Apply(model, quant)

	assert.Equal(t, vram.ModelConfig{Name: "org/new", WeightsGB: 42, NumLayers: 32, KVHeads: 4, HeadDim: 128, AttnHeads: 64}, m)
	assert.Equal(t, vram.QuantizationConfig{Method: "gptq", Bits: 4, BaseParams: 80, GroupSize: 128}, q)
}
