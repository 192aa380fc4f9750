package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/taylorelley/vllm-vram-calc.github.io/api"
	"github.com/taylorelley/vllm-vram-calc.github.io/envconfig"
	"github.com/taylorelley/vllm-vram-calc.github.io/format"
	"github.com/taylorelley/vllm-vram-calc.github.io/persist"
	"github.com/taylorelley/vllm-vram-calc.github.io/presets"
	"github.com/taylorelley/vllm-vram-calc.github.io/progress"
	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

var errUnknownPreset = errors.New("unknown preset")

func NewEstimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate per GPU memory use and KV cache capacity",
		Long: `Estimate how vLLM divides GPU memory between model weights, CUDA graphs,
overhead and the KV cache, how many sequences fit, and print the matching
"vllm serve" command.

Inputs start from the built in defaults (or the saved configuration with
--load), then presets, then a Hugging Face lookup, then explicit flags.`,
		Args: cobra.NoArgs,
		RunE: EstimateHandler,
	}

	d := presets.Builtin().Defaults

	f := cmd.Flags()
	f.String("gpu-preset", "", "GPU preset name (see 'vramcalc presets')")
	f.Float64("vram", d.GPU.VRAMGB, "VRAM per GPU in GB")
	f.Int("gpus", d.GPU.NumGPUs, "Number of GPUs (tensor parallel size)")
	f.Float64("utilization", d.GPU.Utilization, "GPU memory utilization, 0 to 1")

	f.String("model-preset", "", "Model preset name")
	f.String("hf", "", "Fill model fields from a Hugging Face model id")
	f.String("name", "", "Model name used in the generated command")
	f.Float64("weights", d.Model.WeightsGB, "Model weights in GB")
	f.Int("layers", d.Model.NumLayers, "Number of hidden layers")
	f.Int("kv-heads", d.Model.KVHeads, "Number of key/value heads")
	f.Int("head-dim", d.Model.HeadDim, "Attention head dimension")
	f.Int("attn-heads", d.Model.AttnHeads, "Number of attention heads")

	f.String("quant", "", "Quantization preset method, e.g. awq or fp8")
	f.Int("bits", d.Quant.Bits, "Quantized weight bits")
	f.Float64("params", d.Quant.BaseParams, "Parameter count in billions; with --bits sets the weights when --weights is not given")

	f.Int("max-model-len", d.Engine.MaxModelLen, "Maximum sequence length in tokens")
	f.Int("max-num-seqs", d.Engine.MaxNumSeqs, "Maximum concurrent sequences")
	f.Int("max-batched-tokens", d.Engine.MaxBatchedTokens, "Maximum tokens per scheduler step")
	f.String("kv-cache-dtype", d.Engine.KVCacheDtype, "KV cache dtype: auto or fp8")
	f.String("activation-dtype", d.Engine.ActivationDtype, "Activation dtype used for the advisory activation estimate")
	f.Bool("no-cuda-graphs", !d.Engine.CUDAGraphs, "Run with --enforce-eager, skipping CUDA graph capture")
	f.Float64("overhead", d.Engine.OverheadPadding, "Extra per GPU safety margin in GB")

	f.Bool("load", false, "Start from the saved configuration")
	f.Bool("save", false, "Save the resulting configuration")
	f.Bool("json", false, "Print the result as JSON")

	return cmd
}

type inputs struct {
	GPU    vram.GPUConfig
	Model  vram.ModelConfig
	Quant  vram.QuantizationConfig
	Engine vram.EngineConfig
}

func (in inputs) normalize() inputs {
	return inputs{
		GPU:    in.GPU.Normalize(),
		Model:  in.Model.Normalize(),
		Quant:  in.Quant,
		Engine: in.Engine.Normalize(),
	}
}

// resolveInputs layers defaults, saved configuration, presets, a hub
// lookup and explicit flags, in that order.
func resolveInputs(cmd *cobra.Command) (inputs, error) {
	catalog := presets.Builtin()
	d := catalog.Defaults
	in := inputs{GPU: d.GPU, Model: d.Model, Quant: d.Quant, Engine: d.Engine}

	f := cmd.Flags()

	if load, _ := f.GetBool("load"); load {
		saved, ok := persist.Open(persist.Path()).Load()
		if !ok {
			return in, errors.New("no saved configuration, run 'vramcalc estimate --save' first")
		}

		in = inputs{GPU: saved.GPU, Model: saved.Model, Quant: saved.Quant, Engine: saved.Engine}
	}

	if name, _ := f.GetString("gpu-preset"); name != "" {
		g, ok := catalog.GPU(name)
		if !ok {
			return in, fmt.Errorf("%w: gpu %q", errUnknownPreset, name)
		}
		in.GPU.VRAMGB = g.VRAMGB
	}

	if name, _ := f.GetString("model-preset"); name != "" {
		m, ok := catalog.Model(name)
		if !ok {
			return in, fmt.Errorf("%w: model %q", errUnknownPreset, name)
		}
		in.Model, in.Quant = catalog.Configs(m)
	}

	if method, _ := f.GetString("quant"); method != "" {
		q, ok := catalog.Quantization(method)
		if !ok {
			return in, fmt.Errorf("%w: quantization %q", errUnknownPreset, method)
		}
		in.Quant.Method = q.Method
		in.Quant.Bits = q.Bits
		in.Quant.ScaleOverhead = q.ScaleOverhead
	}

	if id, _ := f.GetString("hf"); id != "" {
		mi, err := lookup(cmd, id)
		if err != nil {
			return in, err
		}
		in.Model, in.Quant = mi.Apply(in.Model, in.Quant)
	}

	f.Visit(func(flag *pflag.Flag) {
		applyFlag(&in, flag)
	})

	quantChanged := f.Changed("bits") || f.Changed("params") || f.Changed("quant")
	if !f.Changed("weights") && quantChanged {
		if gb := in.Quant.WeightsGB(); gb > 0 {
			in.Model.WeightsGB = gb
		}
	}

	return in.normalize(), nil
}

func applyFlag(in *inputs, flag *pflag.Flag) {
	v := flag.Value.String()
	i := func() int { n, _ := strconv.Atoi(v); return n }
	fl := func() float64 { n, _ := strconv.ParseFloat(v, 64); return n }

	switch flag.Name {
	case "vram":
		in.GPU.VRAMGB = fl()
	case "gpus":
		in.GPU.NumGPUs = i()
	case "utilization":
		in.GPU.Utilization = fl()
	case "name":
		in.Model.Name = v
	case "weights":
		in.Model.WeightsGB = fl()
	case "layers":
		in.Model.NumLayers = i()
	case "kv-heads":
		in.Model.KVHeads = i()
	case "head-dim":
		in.Model.HeadDim = i()
	case "attn-heads":
		in.Model.AttnHeads = i()
	case "bits":
		in.Quant.Bits = i()
	case "params":
		in.Quant.BaseParams = fl()
	case "max-model-len":
		in.Engine.MaxModelLen = i()
	case "max-num-seqs":
		in.Engine.MaxNumSeqs = i()
	case "max-batched-tokens":
		in.Engine.MaxBatchedTokens = i()
	case "kv-cache-dtype":
		in.Engine.KVCacheDtype = v
	case "activation-dtype":
		in.Engine.ActivationDtype = v
	case "no-cuda-graphs":
		in.Engine.CUDAGraphs = v != "true"
	case "overhead":
		in.Engine.OverheadPadding = fl()
	}
}

func calibration() vram.Calibration {
	c := vram.DefaultCalibration
	c.CUDAGraphsGB = envconfig.CUDAGraphsGB
	return c
}

func EstimateHandler(cmd *cobra.Command, _ []string) error {
	in, err := resolveInputs(cmd)
	if err != nil {
		return err
	}

	c := calibration()
	result := c.Estimate(in.GPU, in.Model, in.Quant, in.Engine)
	activation := c.ActivationEstimate(in.GPU, in.Model, in.Engine)

	if save, _ := cmd.Flags().GetBool("save"); save {
		if err := persist.Open(persist.Path()).Save(in.GPU, in.Model, in.Quant, in.Engine); err != nil {
			return fmt.Errorf("save configuration: %w", err)
		}
		slog.Debug("saved configuration", "path", persist.Path())
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(api.EstimateResponse{Result: result, Activation: activation})
	}

	showEstimate(w, in, result, activation)
	return nil
}

func showEstimate(w io.Writer, in inputs, r vram.Result, a vram.Activation) {
	name := in.Model.Name
	if name == "" {
		name = vram.ModelPlaceholder
	}

	tableRender(w, "Configuration", [][]string{
		{"model", name},
		{"gpus", fmt.Sprintf("%d x %s", in.GPU.NumGPUs, format.GB(in.GPU.VRAMGB))},
		{"utilization", format.Percent(in.GPU.Utilization * 100)},
		{"max model len", strconv.Itoa(in.Engine.MaxModelLen)},
		{"kv cache dtype", in.Engine.KVCacheDtype},
	})

	memory := [][]string{
		{"available", format.GB(r.AvailableVRAMPerGPU)},
		{"weights", format.GB(r.WeightsPerGPU)},
		{"cuda graphs", format.GB(r.CUDAGraphsMemory)},
		{"overhead", format.GB(r.OverheadMemory)},
	}
	if !r.IsOverCapacity {
		memory = append(memory, []string{"kv cache", format.GB(r.TotalKVCacheMemory)})
	}
	memory = append(memory,
		[]string{"free", format.GB(r.FreeMemory)},
		[]string{"usage", format.Percent(r.MemoryUsagePercent)},
	)
	tableRender(w, "Memory per GPU", memory)

	tableRender(w, "KV cache", [][]string{
		{"kv heads per gpu", strconv.Itoa(r.KVHeadsPerGPU)},
		{"bytes per token", format.HumanBytes(r.KVBytesPerToken)},
		{"bytes per sequence", format.HumanBytes(r.KVBytesPerSeq)},
	})

	if !r.IsOverCapacity {
		tableRender(w, "Capacity", [][]string{
			{"max tokens", strconv.FormatInt(r.MaxTokensForKV, 10)},
			{"max sequences", strconv.Itoa(r.MaxConcurrentSequences)},
			{"batched tokens", strconv.Itoa(r.TotalBatchedTokens)},
			{"context per sequence", strconv.Itoa(r.ContextPerSequence)},
		})

		tableRender(w, "Activations (advisory)", [][]string{
			{"buffer", format.GB(a.BufferGB)},
			{"overhead", format.GB(a.OverheadGB)},
			{"cuda graphs", format.GB(a.CUDAGraphsGB)},
		})
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, " ", "Warnings")
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "    %s\n", warning)
		}
		fmt.Fprintln(w)
	}

	if r.Command != "" {
		fmt.Fprintln(w, r.Command)
	}
}

func isTerminal() bool {
	return progress.IsTerminal(os.Stderr)
}
