// Package persist saves and restores the last calculator configuration.
package persist

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/taylorelley/vllm-vram-calc.github.io/debounce"
	"github.com/taylorelley/vllm-vram-calc.github.io/envconfig"
	"github.com/taylorelley/vllm-vram-calc.github.io/store"
	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

const (
	Key = "vllm_calc_config_v1"
	TTL = 30 * 24 * time.Hour
)

type Saved struct {
	GPU    vram.GPUConfig          `json:"gpu" cbor:"gpu"`
	Model  vram.ModelConfig        `json:"model" cbor:"model"`
	Quant  vram.QuantizationConfig `json:"quant" cbor:"quant"`
	Engine vram.EngineConfig       `json:"engine" cbor:"engine"`

	// Timestamp is the save time in Unix milliseconds.
	Timestamp int64 `json:"timestamp" cbor:"timestamp"`
}

func (s Saved) SavedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

type Config struct {
	store *store.Store
	now   func() time.Time
}

// Path is the default location of the saved configuration.
func Path() string {
	return filepath.Join(envconfig.Home, "config.cbor")
}

// Open returns the configuration saved at path.
func Open(path string) *Config {
	return New(store.Open(path, store.Options{TTL: TTL}), time.Now)
}

func New(s *store.Store, now func() time.Time) *Config {
	if now == nil {
		now = time.Now
	}

	return &Config{store: s, now: now}
}

// Load returns the saved configuration, or false when there is none or it is
// older than TTL.
func (c *Config) Load() (*Saved, bool) {
	var saved Saved
	if !c.store.Get(Key, &saved) {
		return nil, false
	}

	if c.now().Sub(saved.SavedAt()) > TTL {
		slog.Debug("saved configuration expired", "saved", saved.SavedAt())
		c.Clear()
		return nil, false
	}

	return &saved, true
}

func (c *Config) Save(gpu vram.GPUConfig, model vram.ModelConfig, quant vram.QuantizationConfig, engine vram.EngineConfig) error {
	return c.store.Put(Key, Saved{
		GPU:       gpu,
		Model:     model,
		Quant:     quant,
		Engine:    engine,
		Timestamp: c.now().UnixMilli(),
	})
}

func (c *Config) Clear() error {
	return c.store.Delete(Key)
}

// Saver delays saves until the configuration has stopped changing for a
// while. Only the latest configuration is written.
type Saver struct {
	config *Config
	d      *debounce.Debouncer

	mu   sync.Mutex
	next *Saved
}

func (c *Config) NewSaver(delay time.Duration) *Saver {
	s := &Saver{config: c}
	s.d = debounce.New(delay, s.save)
	return s
}

func (s *Saver) Save(gpu vram.GPUConfig, model vram.ModelConfig, quant vram.QuantizationConfig, engine vram.EngineConfig) {
	s.mu.Lock()
	s.next = &Saved{GPU: gpu, Model: model, Quant: quant, Engine: engine}
	s.mu.Unlock()

	s.d.Trigger()
}

func (s *Saver) save() {
	s.mu.Lock()
	next := s.next
	s.next = nil
	s.mu.Unlock()

	if next == nil {
		return
	}

	if err := s.config.Save(next.GPU, next.Model, next.Quant, next.Engine); err != nil {
		slog.Warn("failed to save configuration", "error", err)
		return
	}

	slog.Debug("configuration saved", "model", next.Model.Name)
}

// Flush writes a pending configuration now.
func (s *Saver) Flush() {
	s.d.Flush()
}

// Close flushes a pending configuration and stops the Saver.
func (s *Saver) Close() {
	s.d.Flush()
	s.d.Stop()
}
