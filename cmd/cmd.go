package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/taylorelley/vllm-vram-calc.github.io/envconfig"
	"github.com/taylorelley/vllm-vram-calc.github.io/logutil"
	"github.com/taylorelley/vllm-vram-calc.github.io/version"
)

// tableRender writes a titled, borderless two column section.
func tableRender(w io.Writer, header string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	fmt.Fprintln(w, " ", header)
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)

	for _, row := range rows {
		table.Append(append([]string{""}, row...))
	}

	table.Render()
	fmt.Fprintln(w)
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "vramcalc version is %s\n", version.Version)
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func envDocs(names ...string) []envconfig.EnvVar {
	all := envconfig.AsMap()
	if len(names) == 0 {
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	envs := make([]envconfig.EnvVar, 0, len(names))
	for _, name := range names {
		envs = append(envs, all[name])
	}

	return envs
}

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "vramcalc",
		Short:         "GPU memory estimator for vLLM deployments",
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			logutil.Install(os.Stderr)
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	estimateCmd := NewEstimateCmd()
	appendEnvDocs(estimateCmd, envDocs("VRAMCALC_CUDA_GRAPHS_GB", "VRAMCALC_HOME"))

	lookupCmd := NewLookupCmd()
	appendEnvDocs(lookupCmd, envDocs("VRAMCALC_HF_ENDPOINT", "VRAMCALC_HF_TOKEN", "VRAMCALC_LOOKUP_TIMEOUT", "VRAMCALC_HOME"))

	serveCmd := NewServeCmd()
	appendEnvDocs(serveCmd, envDocs())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run:   versionHandler,
	}

	rootCmd.AddCommand(
		estimateCmd,
		lookupCmd,
		NewPresetsCmd(),
		NewConfigCmd(),
		serveCmd,
		versionCmd,
	)

	return rootCmd
}
