package vram

import (
	"fmt"
	"strconv"
	"strings"
)

const ModelPlaceholder = "<model-name>"

// Command renders a vllm serve invocation for the estimated configuration.
// Options that match vLLM's defaults are left out, except for the context
// length, sequence count and memory utilization which are always emitted.
func Command(gpu GPUConfig, model ModelConfig, engine EngineConfig, maxNumSeqs, batchedTokens int) string {
	name := strings.TrimSpace(model.Name)
	if name == "" {
		name = ModelPlaceholder
	}

	args := [][]string{
		{"--max-model-len", strconv.Itoa(engine.MaxModelLen)},
		{"--max-num-seqs", strconv.Itoa(maxNumSeqs)},
	}

	if batchedTokens != engine.MaxBatchedTokens {
		args = append(args, []string{"--max-num-batched-tokens", strconv.Itoa(batchedTokens)})
	}

	if engine.KVCacheDtype != "" && engine.KVCacheDtype != KVCacheDtypeAuto {
		args = append(args, []string{"--kv-cache-dtype", engine.KVCacheDtype})
	}

	if gpu.NumGPUs > 1 {
		args = append(args, []string{"--tensor-parallel-size", strconv.Itoa(gpu.NumGPUs)})
	}

	if !engine.CUDAGraphs {
		args = append(args, []string{"--enforce-eager"})
	}

	args = append(args, []string{"--gpu-memory-utilization", fmt.Sprintf("%.2f", gpu.Utilization)})

	var sb strings.Builder
	sb.WriteString("vllm serve ")
	sb.WriteString(name)
	for _, arg := range args {
		sb.WriteString(" \\\n  ")
		sb.WriteString(strings.Join(arg, " "))
	}

	return sb.String()
}

// CommandArgs splits a command produced by Command back into argv form.
func CommandArgs(command string) []string {
	return strings.Fields(strings.ReplaceAll(command, "\\\n", " "))
}
