package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taylorelley/vllm-vram-calc.github.io/format"
	"github.com/taylorelley/vllm-vram-calc.github.io/persist"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or clear the saved configuration",
		Args:  cobra.NoArgs,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the saved configuration",
		Args:  cobra.NoArgs,
		RunE:  ConfigShowHandler,
	}
	showCmd.Flags().Bool("json", false, "Print the configuration as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the saved configuration",
		Args:  cobra.NoArgs,
		RunE:  ConfigClearHandler,
	}

	cmd.AddCommand(showCmd, clearCmd)
	return cmd
}

func ConfigShowHandler(cmd *cobra.Command, _ []string) error {
	saved, ok := persist.Open(persist.Path()).Load()
	if !ok {
		return fmt.Errorf("no saved configuration")
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(saved)
	}

	tableRender(w, "Saved", [][]string{
		{"saved", format.HumanTime(saved.SavedAt(), "Never")},
		{"path", persist.Path()},
	})
	tableRender(w, "GPU", [][]string{
		{"vram", format.GB(saved.GPU.VRAMGB)},
		{"gpus", fmt.Sprint(saved.GPU.NumGPUs)},
		{"utilization", format.Percent(saved.GPU.Utilization * 100)},
	})
	tableRender(w, "Model", [][]string{
		{"name", saved.Model.Name},
		{"weights", format.GB(saved.Model.WeightsGB)},
		{"layers", fmt.Sprint(saved.Model.NumLayers)},
		{"kv heads", fmt.Sprint(saved.Model.KVHeads)},
		{"head dim", fmt.Sprint(saved.Model.HeadDim)},
		{"quantization", fmt.Sprintf("%s %d-bit", saved.Quant.Method, saved.Quant.Bits)},
	})
	tableRender(w, "Engine", [][]string{
		{"max model len", fmt.Sprint(saved.Engine.MaxModelLen)},
		{"max num seqs", fmt.Sprint(saved.Engine.MaxNumSeqs)},
		{"max batched tokens", fmt.Sprint(saved.Engine.MaxBatchedTokens)},
		{"kv cache dtype", saved.Engine.KVCacheDtype},
		{"cuda graphs", fmt.Sprint(saved.Engine.CUDAGraphs)},
		{"overhead", format.GB(saved.Engine.OverheadPadding)},
	})

	return nil
}

func ConfigClearHandler(cmd *cobra.Command, _ []string) error {
	if err := persist.Open(persist.Path()).Clear(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "cleared saved configuration")
	return nil
}
