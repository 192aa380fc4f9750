package envconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type VRAMCalcHost struct {
	Scheme string
	Host   string
	Port   string
}

func (h VRAMCalcHost) String() string {
	return fmt.Sprintf("%s://%s", h.Scheme, net.JoinHostPort(h.Host, h.Port))
}

var ErrInvalidHostPort = errors.New("invalid port specified in VRAMCALC_HOST")

const defaultPort = "8088"

var (
	// Set via VRAMCALC_ORIGINS in the environment
	AllowOrigins []string
	// Set via VRAMCALC_CUDA_GRAPHS_GB in the environment
	CUDAGraphsGB float64
	// Set via VRAMCALC_DEBUG in the environment
	Debug bool
	// Set via VRAMCALC_HF_ENDPOINT in the environment
	HFEndpoint string
	// Set via VRAMCALC_HF_TOKEN or HF_TOKEN in the environment
	HFToken string
	// Set via VRAMCALC_HOME in the environment
	Home string
	// Set via VRAMCALC_HOST in the environment
	Host *VRAMCalcHost
	// Set via VRAMCALC_LOOKUP_TIMEOUT in the environment
	LookupTimeout time.Duration
	// Set via VRAMCALC_SAVE_DELAY in the environment
	SaveDelay time.Duration
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"VRAMCALC_CUDA_GRAPHS_GB": {"VRAMCALC_CUDA_GRAPHS_GB", CUDAGraphsGB, "Per GPU memory reserved for CUDA graph capture (default 2.5)"},
		"VRAMCALC_DEBUG":          {"VRAMCALC_DEBUG", Debug, "Show additional debug information (e.g. VRAMCALC_DEBUG=1)"},
		"VRAMCALC_HF_ENDPOINT":    {"VRAMCALC_HF_ENDPOINT", HFEndpoint, "Hugging Face Hub endpoint (default https://huggingface.co)"},
		"VRAMCALC_HF_TOKEN":       {"VRAMCALC_HF_TOKEN", HFToken != "", "Token used for gated model metadata (falls back to HF_TOKEN)"},
		"VRAMCALC_HOME":           {"VRAMCALC_HOME", Home, "Directory for saved configuration and the metadata cache"},
		"VRAMCALC_HOST":           {"VRAMCALC_HOST", Host, "IP Address for the vramcalc server (default 127.0.0.1:8088)"},
		"VRAMCALC_LOOKUP_TIMEOUT": {"VRAMCALC_LOOKUP_TIMEOUT", LookupTimeout, "Timeout for model metadata lookups (default 10s)"},
		"VRAMCALC_ORIGINS":        {"VRAMCALC_ORIGINS", AllowOrigins, "A comma separated list of allowed origins"},
		"VRAMCALC_SAVE_DELAY":     {"VRAMCALC_SAVE_DELAY", SaveDelay, "Quiet period before a changed configuration is saved (default 2s)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

var defaultAllowOrigins = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Debug = false
	if debug := clean("VRAMCALC_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	Home = clean("VRAMCALC_HOME")
	if Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("failed to lookup home directory", "error", err)
			home = os.TempDir()
		}
		Home = filepath.Join(home, ".vramcalc")
	}

	HFEndpoint = strings.TrimRight(clean("VRAMCALC_HF_ENDPOINT"), "/")
	if HFEndpoint == "" {
		HFEndpoint = "https://huggingface.co"
	}

	HFToken = clean("VRAMCALC_HF_TOKEN")
	if HFToken == "" {
		HFToken = clean("HF_TOKEN")
	}

	LookupTimeout = duration("VRAMCALC_LOOKUP_TIMEOUT", 10*time.Second)
	SaveDelay = duration("VRAMCALC_SAVE_DELAY", 2*time.Second)

	CUDAGraphsGB = 2.5
	if gb := clean("VRAMCALC_CUDA_GRAPHS_GB"); gb != "" {
		v, err := strconv.ParseFloat(gb, 64)
		if err != nil || v < 0 {
			slog.Error("invalid setting, ignoring", "VRAMCALC_CUDA_GRAPHS_GB", gb, "error", err)
		} else {
			CUDAGraphsGB = v
		}
	}

	AllowOrigins = nil
	if origins := clean("VRAMCALC_ORIGINS"); origins != "" {
		AllowOrigins = strings.Split(origins, ",")
	}
	for _, allowOrigin := range defaultAllowOrigins {
		AllowOrigins = append(AllowOrigins,
			fmt.Sprintf("http://%s", allowOrigin),
			fmt.Sprintf("https://%s", allowOrigin),
			fmt.Sprintf("http://%s:*", allowOrigin),
			fmt.Sprintf("https://%s:*", allowOrigin),
		)
	}

	var err error
	Host, err = getHost()
	if err != nil {
		slog.Error("invalid setting", "VRAMCALC_HOST", clean("VRAMCALC_HOST"), "error", err, "using", defaultPort)
		Host = &VRAMCalcHost{Scheme: "http", Host: "127.0.0.1", Port: defaultPort}
	}
}

// duration parses key as a Go duration, or as a number of seconds.
func duration(key string, fallback time.Duration) time.Duration {
	s := clean(key)
	if s == "" {
		return fallback
	}

	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}

	slog.Error("invalid setting, ignoring", key, s)
	return fallback
}

func getHost() (*VRAMCalcHost, error) {
	defaultHost := "127.0.0.1"
	s := clean("VRAMCALC_HOST")
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
	case scheme == "https":
	default:
		return nil, fmt.Errorf("unsupported scheme %q in VRAMCALC_HOST", scheme)
	}

	hostport, _, _ = strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = defaultHost, defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		return nil, ErrInvalidHostPort
	}

	return &VRAMCalcHost{
		Scheme: scheme,
		Host:   host,
		Port:   port,
	}, nil
}

// Verbose reports whether VRAMCALC_DEBUG asks for more than debug output,
// e.g. VRAMCALC_DEBUG=2.
func Verbose() bool {
	level, err := strconv.Atoi(clean("VRAMCALC_DEBUG"))
	return err == nil && level > 1
}
