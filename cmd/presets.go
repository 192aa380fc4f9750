package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/taylorelley/vllm-vram-calc.github.io/format"
	"github.com/taylorelley/vllm-vram-calc.github.io/presets"
)

func NewPresetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List GPU, model and quantization presets",
		Args:  cobra.NoArgs,
		RunE:  PresetsHandler,
	}

	cmd.Flags().Bool("json", false, "Print the presets as JSON")
	return cmd
}

func PresetsHandler(cmd *cobra.Command, _ []string) error {
	catalog := presets.Builtin()
	w := cmd.OutOrStdout()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog)
	}

	render := func(header []string, data [][]string) {
		table := tablewriter.NewWriter(w)
		table.SetHeader(header)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(data)
		table.Render()
		fmt.Fprintln(w)
	}

	var gpus [][]string
	for _, g := range catalog.GPUs {
		gpus = append(gpus, []string{g.Name, g.Class, format.GB(g.VRAMGB)})
	}
	render([]string{"GPU", "CLASS", "VRAM"}, gpus)

	var models [][]string
	for _, m := range catalog.Models {
		models = append(models, []string{
			m.Name,
			format.GB(m.WeightsGB),
			strconv.Itoa(m.NumLayers),
			fmt.Sprintf("%d/%d", m.KVHeads, m.AttnHeads),
			strconv.Itoa(m.HeadDim),
			fmt.Sprintf("%s %d-bit", m.Quant, m.Bits),
			format.Parameters(m.BaseParams),
		})
	}
	render([]string{"MODEL", "WEIGHTS", "LAYERS", "KV/ATTN HEADS", "HEAD DIM", "QUANT", "PARAMS"}, models)

	var quants [][]string
	for _, q := range catalog.Quantizations {
		scales := "-"
		if q.HasScales {
			scales = format.Percent(q.ScaleOverhead * 100)
		}
		quants = append(quants, []string{q.Method, strconv.Itoa(q.Bits), scales})
	}
	render([]string{"QUANTIZATION", "BITS", "SCALE OVERHEAD"}, quants)

	return nil
}
