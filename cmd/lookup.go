package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/taylorelley/vllm-vram-calc.github.io/envconfig"
	"github.com/taylorelley/vllm-vram-calc.github.io/format"
	"github.com/taylorelley/vllm-vram-calc.github.io/progress"
	"github.com/taylorelley/vllm-vram-calc.github.io/registry"
)

func NewLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup MODEL",
		Short: "Show architecture metadata for a Hugging Face model",
		Example: `  vramcalc lookup meta-llama/Llama-3.1-70B-Instruct
  vramcalc estimate --hf Qwen/Qwen2.5-32B-Instruct --gpus 2`,
		Args: cobra.ExactArgs(1),
		RunE: LookupHandler,
	}

	cmd.Flags().Bool("json", false, "Print the metadata as JSON")
	cmd.Flags().Bool("no-cache", false, "Skip the local metadata cache")
	return cmd
}

func registryClient(useCache bool) *registry.Client {
	c := &registry.Client{
		BaseURL: envconfig.HFEndpoint,
		Token:   envconfig.HFToken,
		Timeout: envconfig.LookupTimeout,
	}

	if useCache {
		c.Cache = registry.NewCache(registry.CachePath())
	}

	return c
}

// lookup fetches metadata for id, showing a spinner on a terminal.
func lookup(cmd *cobra.Command, id string) (registry.ModelInfo, error) {
	noCache, _ := cmd.Flags().GetBool("no-cache")
	client := registryClient(!noCache)

	var p *progress.Progress
	var spinner *progress.Spinner
	if isTerminal() {
		p = progress.NewProgress(os.Stderr)
		spinner = progress.NewSpinner(fmt.Sprintf("looking up %s", id))
		p.Add(spinner)
	}

	mi, err := client.Lookup(cmd.Context(), id)

	if p != nil {
		if err != nil {
			spinner.Fail()
		}
		p.StopAndClear()
	}

	if errors.Is(err, registry.ErrTimeout) {
		return mi, fmt.Errorf("%w, please check your connection and try again", err)
	}

	return mi, err
}

func LookupHandler(cmd *cobra.Command, args []string) error {
	mi, err := lookup(cmd, args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(mi)
	}

	dash := func(n int) string {
		if n <= 0 {
			return "-"
		}
		return strconv.Itoa(n)
	}

	rows := [][]string{
		{"name", mi.Name},
		{"weights", "-"},
		{"layers", dash(mi.NumLayers)},
		{"attention heads", dash(mi.AttnHeads)},
		{"kv heads", dash(mi.KVHeads)},
		{"head dim", dash(mi.HeadDim)},
		{"context length", dash(mi.MaxContextLength)},
	}
	if mi.WeightsGB > 0 {
		rows[1][1] = format.GB(mi.WeightsGB)
	}
	tableRender(w, "Model", rows)

	if mi.QuantMethod != "" {
		tableRender(w, "Quantization", [][]string{
			{"method", mi.QuantMethod},
			{"bits", dash(mi.QuantBits)},
			{"parameters", format.Parameters(mi.BaseParams)},
		})
	}

	return nil
}
