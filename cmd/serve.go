package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/taylorelley/vllm-vram-calc.github.io/envconfig"
	"github.com/taylorelley/vllm-vram-calc.github.io/server"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the estimator HTTP service",
		Args:    cobra.NoArgs,
		RunE:    RunServer,
	}
}

func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(envconfig.Host.Host, envconfig.Host.Port))
	if err != nil {
		return err
	}

	return server.Serve(ln)
}
