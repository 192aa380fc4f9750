// Package api implements the client-side API for code wishing to interact
// with the vramcalc service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime"

	"github.com/taylorelley/vllm-vram-calc.github.io/envconfig"
	"github.com/taylorelley/vllm-vram-calc.github.io/version"
)

// Client encapsulates client state for interacting with the vramcalc
// service. Use [ClientFromEnvironment] to create new Clients.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode}

	err := json.Unmarshal(body, &apiError)
	if err != nil {
		// Use the full body as the message if we fail to decode a response.
		apiError.ErrorMessage = string(body)
	}

	return apiError
}

// ClientFromEnvironment creates a new [Client] using configuration from the
// environment variable VRAMCALC_HOST, which points to the network host and
// port on which the service listens.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: &url.URL{
			Scheme: envconfig.Host.Scheme,
			Host:   net.JoinHostPort(envconfig.Host.Host, envconfig.Host.Port),
		},
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	var data []byte
	var err error

	switch reqData := reqData.(type) {
	case io.Reader:
		// reqData is already an io.Reader
		reqBody = reqData
	case nil:
		// noop
	default:
		data, err = json.Marshal(reqData)
		if err != nil {
			return err
		}

		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("vramcalc/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}

	if err := checkError(respObj, respBody); err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}
	return nil
}

// Estimate computes the memory breakdown for req on the server.
func (c *Client) Estimate(ctx context.Context, req *EstimateRequest) (*EstimateResponse, error) {
	var resp EstimateResponse
	if err := c.do(ctx, http.MethodPost, "/api/estimate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Lookup fetches architecture metadata for a hub model id.
func (c *Client) Lookup(ctx context.Context, modelID string) (*LookupResponse, error) {
	var resp LookupResponse
	if err := c.do(ctx, http.MethodGet, "/api/models/"+modelID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Presets lists the built in GPU, model and quantization presets.
func (c *Client) Presets(ctx context.Context) (*PresetsResponse, error) {
	var resp PresetsResponse
	if err := c.do(ctx, http.MethodGet, "/api/presets", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Config returns the saved configuration. A [StatusError] with status 404
// means nothing is saved.
func (c *Client) Config(ctx context.Context) (*ConfigResponse, error) {
	var resp ConfigResponse
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SaveConfig(ctx context.Context, req *ConfigRequest) error {
	return c.do(ctx, http.MethodPut, "/api/config", req, nil)
}

func (c *Client) ClearConfig(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/config", nil, nil)
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodHead, "/", nil, nil); err != nil {
		return err
	}
	return nil
}

// Version returns the version of the server.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}
