package persist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taylorelley/vllm-vram-calc.github.io/store"
	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

var (
	gpu    = vram.GPUConfig{VRAMGB: 34.2, NumGPUs: 2, Utilization: 0.9}
	model  = vram.ModelConfig{Name: "HyperNova-60B", WeightsGB: 42, NumLayers: 80, KVHeads: 8, HeadDim: 128, AttnHeads: 64, MaxContextLength: 131072}
	quant  = vram.QuantizationConfig{Method: "awq", Bits: 4, BaseParams: 80, GroupSize: 128}
	engine = vram.EngineConfig{MaxModelLen: 16384, MaxNumSeqs: 256, MaxBatchedTokens: 8192, KVCacheDtype: "auto", ActivationDtype: "auto", CUDAGraphs: true, OverheadPadding: 1}
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.cbor")
	c := Open(path)

	_, ok := c.Load()
	require.False(t, ok)

	require.NoError(t, c.Save(gpu, model, quant, engine))

	saved, ok := Open(path).Load()
	require.True(t, ok)
	assert.Equal(t, gpu, saved.GPU)
	assert.Equal(t, model, saved.Model)
	assert.Equal(t, quant, saved.Quant)
	assert.Equal(t, engine, saved.Engine)
	assert.WithinDuration(t, time.Now(), saved.SavedAt(), time.Minute)

	require.NoError(t, c.Clear())
	_, ok = Open(path).Load()
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(store.Open("", store.Options{TTL: TTL, Now: clk.Now}), clk.Now)

	require.NoError(t, c.Save(gpu, model, quant, engine))

	clk.now = clk.now.Add(29 * 24 * time.Hour)
	_, ok := c.Load()
	require.True(t, ok)

	clk.now = clk.now.Add(2 * 24 * time.Hour)
	_, ok = c.Load()
	assert.False(t, ok)
}

func TestExpiryWithoutStoreTTL(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(store.Open("", store.Options{Now: clk.Now}), clk.Now)

	require.NoError(t, c.Save(gpu, model, quant, engine))
	clk.now = clk.now.Add(31 * 24 * time.Hour)

	_, ok := c.Load()
	assert.False(t, ok)
}

func TestSaverKeepsLatest(t *testing.T) {
	c := New(store.Open("", store.Options{}), nil)
	s := c.NewSaver(time.Hour)

	for _, name := range []string{"a", "b", "c"} {
		m := model
		m.Name = name
		s.Save(gpu, m, quant, engine)
	}

	_, ok := c.Load()
	require.False(t, ok, "nothing written before the quiet period")

	s.Close()

	saved, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, "c", saved.Model.Name)
}

func TestSaverDelay(t *testing.T) {
	c := New(store.Open("", store.Options{}), nil)
	s := c.NewSaver(20 * time.Millisecond)
	defer s.Close()

	s.Save(gpu, model, quant, engine)

	require.Eventually(t, func() bool {
		_, ok := c.Load()
		return ok
	}, time.Second, 5*time.Millisecond)
}
