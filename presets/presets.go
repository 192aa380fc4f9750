// Package presets carries the built in GPU, model and quantization presets
// and the default configuration.
package presets

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

//go:embed presets.yaml
var presetsYAML []byte

type GPU struct {
	Name   string  `yaml:"name" json:"name"`
	Class  string  `yaml:"class" json:"class"`
	VRAMGB float64 `yaml:"vram_gb" json:"vram_gb"`
}

type Model struct {
	vram.ModelConfig `yaml:",inline"`

	Quant      string  `yaml:"quant" json:"quant"`
	Bits       int     `yaml:"bits" json:"bits"`
	BaseParams float64 `yaml:"base_params" json:"base_params"`
}

type Quantization struct {
	vram.QuantizationConfig `yaml:",inline"`

	HasScales bool `yaml:"has_scales" json:"has_scales"`
}

type KVCacheDtype struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

type Defaults struct {
	GPU    vram.GPUConfig          `yaml:"gpu" json:"gpu"`
	Model  vram.ModelConfig        `yaml:"model" json:"model"`
	Quant  vram.QuantizationConfig `yaml:"quant" json:"quant"`
	Engine vram.EngineConfig       `yaml:"engine" json:"engine"`
}

type Catalog struct {
	GPUs          []GPU          `yaml:"gpus" json:"gpus"`
	Models        []Model        `yaml:"models" json:"models"`
	Quantizations []Quantization `yaml:"quantizations" json:"quantizations"`
	KVCacheDtypes []KVCacheDtype `yaml:"kv_cache_dtypes" json:"kv_cache_dtypes"`
	Defaults      Defaults       `yaml:"defaults" json:"defaults"`
}

// Parse decodes a catalog in the presets.yaml layout.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("presets: %w", err)
	}

	for _, g := range c.GPUs {
		if g.VRAMGB <= 0 {
			return nil, fmt.Errorf("presets: gpu %q has no vram", g.Name)
		}
	}

	return &c, nil
}

var builtin = sync.OnceValue(func() *Catalog {
	c, err := Parse(presetsYAML)
	if err != nil {
		panic(err)
	}
	return c
})

// Builtin returns the embedded catalog. Callers must not modify it.
func Builtin() *Catalog {
	return builtin()
}

func (c *Catalog) GPU(name string) (GPU, bool) {
	for _, g := range c.GPUs {
		if strings.EqualFold(g.Name, name) {
			return g, true
		}
	}

	return GPU{}, false
}

func (c *Catalog) Model(name string) (Model, bool) {
	for _, m := range c.Models {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}

	return Model{}, false
}

func (c *Catalog) Quantization(method string) (Quantization, bool) {
	for _, q := range c.Quantizations {
		if strings.EqualFold(q.Method, method) {
			return q, true
		}
	}

	return Quantization{}, false
}

// Configs expands a model preset into the model and quantization records
// fed to the estimator.
func (c *Catalog) Configs(m Model) (vram.ModelConfig, vram.QuantizationConfig) {
	quant := vram.QuantizationConfig{
		Method:     m.Quant,
		Bits:       m.Bits,
		BaseParams: m.BaseParams,
		GroupSize:  c.Defaults.Quant.GroupSize,
	}

	if q, ok := c.Quantization(m.Quant); ok {
		quant.ScaleOverhead = q.ScaleOverhead
	}

	return m.ModelConfig, quant
}
