package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/taylorelley/vllm-vram-calc.github.io/api"
	"github.com/taylorelley/vllm-vram-calc.github.io/envconfig"
	"github.com/taylorelley/vllm-vram-calc.github.io/metrics"
	"github.com/taylorelley/vllm-vram-calc.github.io/persist"
	"github.com/taylorelley/vllm-vram-calc.github.io/presets"
	"github.com/taylorelley/vllm-vram-calc.github.io/registry"
	"github.com/taylorelley/vllm-vram-calc.github.io/version"
	"github.com/taylorelley/vllm-vram-calc.github.io/vram"
)

// Lookuper fetches model metadata by hub id.
type Lookuper interface {
	Lookup(ctx context.Context, modelID string) (registry.ModelInfo, error)
}

type Server struct {
	Catalog     *presets.Catalog
	Calibration vram.Calibration
	Registry    Lookuper
	Config      *persist.Config

	// Saver batches PUT /api/config writes while the editor is changing.
	Saver *persist.Saver
}

func (s *Server) HeartbeatHandler(c *gin.Context) {
	c.String(http.StatusOK, "vramcalc is running")
}

func (s *Server) VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version})
}

// inputs fills the sections missing from req with the defaults and clamps
// everything into range. Without a weight size the quantized size is used.
func (s *Server) inputs(req api.EstimateRequest) (vram.GPUConfig, vram.ModelConfig, vram.QuantizationConfig, vram.EngineConfig) {
	d := s.Catalog.Defaults
	gpu, model, quant, engine := d.GPU, d.Model, d.Quant, d.Engine

	if req.GPU != nil {
		gpu = *req.GPU
	}
	if req.Model != nil {
		model = *req.Model
	}
	if req.Quant != nil {
		quant = *req.Quant
	}
	if req.Engine != nil {
		engine = *req.Engine
	}

	if model.WeightsGB <= 0 {
		model.WeightsGB = quant.WeightsGB()
	}

	return gpu.Normalize(), model.Normalize(), quant, engine.Normalize()
}

func (s *Server) EstimateHandler(c *gin.Context) {
	var req api.EstimateRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		// an empty body estimates the defaults
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gpu, model, quant, engine := s.inputs(req)
	result := s.Calibration.Estimate(gpu, model, quant, engine)
	metrics.ObserveEstimate(result)

	slog.Debug("estimate", "model", model.Name, "gpus", gpu.NumGPUs, "over_capacity", result.IsOverCapacity, "max_seqs", result.MaxConcurrentSequences)

	c.JSON(http.StatusOK, api.EstimateResponse{
		Result:     result,
		Activation: s.Calibration.ActivationEstimate(gpu, model, engine),
	})
}

func (s *Server) PresetsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.Catalog)
}

func (s *Server) LookupHandler(c *gin.Context) {
	if s.Registry == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "model lookup is disabled"})
		return
	}

	id := strings.Trim(c.Param("id"), "/")
	mi, err := s.Registry.Lookup(c.Request.Context(), id)
	switch {
	case errors.Is(err, registry.ErrEmptyModelID):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, registry.ErrModelNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, registry.ErrModelGated):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case errors.Is(err, registry.ErrTimeout):
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Warn("model lookup failed", "model", id, "error", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.LookupResponse{Model: mi})
}

func (s *Server) ConfigHandler(c *gin.Context) {
	s.Saver.Flush()

	saved, ok := s.Config.Load()
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no saved configuration"})
		return
	}

	c.JSON(http.StatusOK, api.ConfigResponse{
		ConfigRequest: api.ConfigRequest{
			GPU:    saved.GPU,
			Model:  saved.Model,
			Quant:  saved.Quant,
			Engine: saved.Engine,
		},
		SavedAt: saved.SavedAt(),
	})
}

func (s *Server) SaveConfigHandler(c *gin.Context) {
	var req api.ConfigRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.Saver.Save(req.GPU, req.Model, req.Quant, req.Engine)
	c.Status(http.StatusAccepted)
}

func (s *Server) ClearConfigHandler(c *gin.Context) {
	// a pending save would otherwise bring the configuration back
	s.Saver.Flush()

	if err := s.Config.Clear(); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GenerateRoutes() (http.Handler, error) {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowBrowserExtensions = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
		requestIDHeader,
	}
	config.ExposeHeaders = []string{requestIDHeader}
	config.AllowOrigins = envconfig.AllowOrigins
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("VRAMCALC_ORIGINS: %w", err)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		cors.New(config),
		requestID(),
	)

	r.HEAD("/", s.HeartbeatHandler)
	r.GET("/", s.HeartbeatHandler)
	r.HEAD("/api/version", s.VersionHandler)
	r.GET("/api/version", s.VersionHandler)

	r.POST("/api/estimate", s.EstimateHandler)
	r.GET("/api/presets", s.PresetsHandler)
	r.GET("/api/models/*id", s.LookupHandler)

	r.GET("/api/config", s.ConfigHandler)
	r.PUT("/api/config", s.SaveConfigHandler)
	r.DELETE("/api/config", s.ClearConfigHandler)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r, nil
}

// NewServer wires a Server from the environment configuration.
func NewServer() *Server {
	calibration := vram.DefaultCalibration
	calibration.CUDAGraphsGB = envconfig.CUDAGraphsGB

	config := persist.Open(persist.Path())

	return &Server{
		Catalog:     presets.Builtin(),
		Calibration: calibration,
		Registry: &registry.Client{
			BaseURL: envconfig.HFEndpoint,
			Token:   envconfig.HFToken,
			Timeout: envconfig.LookupTimeout,
			Cache:   registry.NewCache(registry.CachePath()),
		},
		Config: config,
		Saver:  config.NewSaver(envconfig.SaveDelay),
	}
}

func Serve(ln net.Listener) error {
	slog.Info("server config", "env", envconfig.Values())

	if !envconfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := NewServer()

	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// listen for a ctrl+c, drain in flight requests and write a pending save
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srvr.Shutdown(ctx)
		s.Saver.Close()
	}()

	if err := srvr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
