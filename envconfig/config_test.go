package envconfig

import (
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Setenv("VRAMCALC_DEBUG", "")
	LoadConfig()
	require.False(t, Debug)
	t.Setenv("VRAMCALC_DEBUG", "false")
	LoadConfig()
	require.False(t, Debug)
	t.Setenv("VRAMCALC_DEBUG", "1")
	LoadConfig()
	require.True(t, Debug)
	t.Setenv("VRAMCALC_DEBUG", "yes please")
	LoadConfig()
	require.True(t, Debug)
}

func TestDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VRAMCALC_HOME", "")
	t.Setenv("VRAMCALC_HF_ENDPOINT", "")
	t.Setenv("VRAMCALC_HF_TOKEN", "")
	t.Setenv("HF_TOKEN", "")
	t.Setenv("VRAMCALC_LOOKUP_TIMEOUT", "")
	t.Setenv("VRAMCALC_SAVE_DELAY", "")
	t.Setenv("VRAMCALC_CUDA_GRAPHS_GB", "")
	LoadConfig()

	assert.Equal(t, filepath.Join(home, ".vramcalc"), Home)
	assert.Equal(t, "https://huggingface.co", HFEndpoint)
	assert.Empty(t, HFToken)
	assert.Equal(t, 10*time.Second, LookupTimeout)
	assert.Equal(t, 2*time.Second, SaveDelay)
	assert.InDelta(t, 2.5, CUDAGraphsGB, 1e-9)
	assert.Contains(t, AllowOrigins, "http://localhost")
}

func TestOverrides(t *testing.T) {
	t.Setenv("VRAMCALC_HOME", "/srv/vramcalc")
	t.Setenv("VRAMCALC_HF_ENDPOINT", "https://hf-mirror.example.com/")
	t.Setenv("VRAMCALC_HF_TOKEN", "")
	t.Setenv("HF_TOKEN", "hf_secret")
	t.Setenv("VRAMCALC_LOOKUP_TIMEOUT", "30")
	t.Setenv("VRAMCALC_SAVE_DELAY", "250ms")
	t.Setenv("VRAMCALC_CUDA_GRAPHS_GB", "3.25")
	t.Setenv("VRAMCALC_ORIGINS", "https://calc.example.com")
	LoadConfig()

	assert.Equal(t, "/srv/vramcalc", Home)
	assert.Equal(t, "https://hf-mirror.example.com", HFEndpoint)
	assert.Equal(t, "hf_secret", HFToken)
	assert.Equal(t, 30*time.Second, LookupTimeout)
	assert.Equal(t, 250*time.Millisecond, SaveDelay)
	assert.InDelta(t, 3.25, CUDAGraphsGB, 1e-9)
	assert.Equal(t, "https://calc.example.com", AllowOrigins[0])

	t.Setenv("VRAMCALC_LOOKUP_TIMEOUT", "soon")
	t.Setenv("VRAMCALC_CUDA_GRAPHS_GB", "-1")
	LoadConfig()
	assert.Equal(t, 10*time.Second, LookupTimeout)
	assert.InDelta(t, 2.5, CUDAGraphsGB, 1e-9)
}

func TestHostFromEnvironment(t *testing.T) {
	type testCase struct {
		value  string
		expect string
		err    error
	}

	hostTestCases := map[string]*testCase{
		"empty":               {value: "", expect: "127.0.0.1:8088"},
		"only address":        {value: "1.2.3.4", expect: "1.2.3.4:8088"},
		"only port":           {value: ":1234", expect: ":1234"},
		"address and port":    {value: "1.2.3.4:1234", expect: "1.2.3.4:1234"},
		"hostname":            {value: "example.com", expect: "example.com:8088"},
		"hostname and port":   {value: "example.com:1234", expect: "example.com:1234"},
		"zero port":           {value: ":0", expect: ":0"},
		"too large port":      {value: ":66000", err: ErrInvalidHostPort},
		"too small port":      {value: ":-1", err: ErrInvalidHostPort},
		"ipv6 localhost":      {value: "[::1]", expect: "[::1]:8088"},
		"ipv6 world open":     {value: "[::]", expect: "[::]:8088"},
		"ipv6 no brackets":    {value: "::1", expect: "[::1]:8088"},
		"ipv6 + port":         {value: "[::1]:1337", expect: "[::1]:1337"},
		"extra space":         {value: " 1.2.3.4 ", expect: "1.2.3.4:8088"},
		"extra quotes":        {value: "\"1.2.3.4\"", expect: "1.2.3.4:8088"},
		"extra space+quotes":  {value: " \" 1.2.3.4 \" ", expect: "1.2.3.4:8088"},
		"extra single quotes": {value: "'1.2.3.4'", expect: "1.2.3.4:8088"},
		"scheme":              {value: "https://calc.example.com:443", expect: "calc.example.com:443"},
	}

	for k, v := range hostTestCases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("VRAMCALC_HOST", v.value)

			oh, err := getHost()
			if err != v.err {
				t.Fatalf("expected %s, got %s", v.err, err)
			}

			if err == nil {
				host := net.JoinHostPort(oh.Host, oh.Port)
				assert.Equal(t, v.expect, host, fmt.Sprintf("%s: expected %s, got %s", k, v.expect, host))
			}
		})
	}
}
