// Package registry looks up model architecture metadata on the Hugging Face
// hub.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/taylorelley/vllm-vram-calc.github.io/envconfig"
	"github.com/taylorelley/vllm-vram-calc.github.io/metrics"
	"github.com/taylorelley/vllm-vram-calc.github.io/store"
)

const (
	DefaultBaseURL = "https://huggingface.co"
	DefaultTimeout = 10 * time.Second

	CacheTTL        = 7 * 24 * time.Hour
	CacheMaxEntries = 50
)

var (
	ErrEmptyModelID  = errors.New("please enter a model ID")
	ErrModelNotFound = errors.New("model not found")
	ErrModelGated    = errors.New("model is private or gated")
	ErrTimeout       = errors.New("request timed out")
)

// StatusError is an unexpected response from the hub.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("failed to fetch model (%s): %s", e.Status, e.Message)
	}

	return fmt.Sprintf("failed to fetch model (%s)", e.Status)
}

type Client struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client

	// Cache holds raw metadata by model id. Nil disables caching.
	Cache *store.Store

	group singleflight.Group
}

// CachePath is the default location of the metadata cache.
func CachePath() string {
	return filepath.Join(envconfig.Home, "models.cbor")
}

// NewCache opens the metadata cache at path with the hub retention policy.
func NewCache(path string) *store.Store {
	return store.Open(path, store.Options{TTL: CacheTTL, MaxEntries: CacheMaxEntries})
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	return http.DefaultClient
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}

	return DefaultTimeout
}

func (c *Client) url(elem ...string) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	return u.JoinPath(elem...).String(), nil
}

// Lookup returns the architecture fields for modelID.
func (c *Client) Lookup(ctx context.Context, modelID string) (ModelInfo, error) {
	m, err := c.Fetch(ctx, modelID)
	if err != nil {
		return ModelInfo{}, err
	}

	return m.ModelInfo(), nil
}

// Fetch returns the raw metadata for modelID, from the cache when fresh.
// Concurrent fetches of the same id share one request.
func (c *Client) Fetch(ctx context.Context, modelID string) (*Model, error) {
	modelID = strings.Trim(strings.TrimSpace(modelID), "/")
	if modelID == "" {
		return nil, ErrEmptyModelID
	}

	if c.Cache != nil {
		var m Model
		if c.Cache.Get(modelID, &m) {
			slog.Debug("model metadata cache hit", "model", modelID)
			metrics.ObserveLookup("cached", 0)
			return &m, nil
		}
	}

	ch := c.group.DoChan(modelID, func() (any, error) {
		// detached so one caller giving up does not fail the others
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
		defer cancel()

		start := time.Now()
		m, err := c.fetch(ctx, modelID)
		metrics.ObserveLookup(status(err), time.Since(start))
		if err != nil {
			return nil, err
		}

		if c.Cache != nil {
			if err := c.Cache.Put(modelID, m); err != nil {
				slog.Warn("failed to cache model metadata", "model", modelID, "error", err)
			}
		}

		return m, nil
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Model), nil
	}
}

func (c *Client) fetch(ctx context.Context, modelID string) (*Model, error) {
	infoURL, err := c.url("api", "models", modelID)
	if err != nil {
		return nil, err
	}

	configURL, err := c.url(modelID, "resolve", "main", "config.json")
	if err != nil {
		return nil, err
	}

	var m Model
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := c.get(gctx, infoURL)
		if err != nil {
			return err
		}

		if err := json.Unmarshal(body, &m.Info); err != nil {
			return fmt.Errorf("decode model info: %w", err)
		}

		if m.Info.ID == "" && m.Info.ModelID == "" {
			m.Info.ID = modelID
		}

		return nil
	})

	var config []byte
	g.Go(func() error {
		body, err := c.get(gctx, configURL)
		if err != nil {
			// a repository without config.json still has usable info
			slog.Debug("config.json unavailable", "model", modelID, "error", err)
			return nil
		}

		if json.Valid(body) {
			config = body
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}

		var serr StatusError
		if errors.As(err, &serr) {
			switch serr.StatusCode {
			case http.StatusNotFound:
				return nil, fmt.Errorf("%w: %q, please check the spelling and try again", ErrModelNotFound, modelID)
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, fmt.Errorf("%w: %q, you may need to authenticate", ErrModelGated, modelID)
			}
		}

		return nil, err
	}

	m.Config = config
	return &m, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return nil, StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Message: e.Error}
	}

	return body, nil
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrModelNotFound):
		return "not_found"
	case errors.Is(err, ErrModelGated):
		return "gated"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
