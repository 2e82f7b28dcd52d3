package http

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/legend"
	"github.com/couchcryptid/atmo-alert-service/internal/observability"
	"github.com/couchcryptid/atmo-alert-service/internal/palette"
	"github.com/couchcryptid/atmo-alert-service/internal/raster"
)

const (
	// maxGridBytes caps the size of a grid posted to /v1/classify.
	maxGridBytes = 64 << 20
	// maxGridCells bounds the declared grid size; each cell takes at least two bytes of text.
	maxGridCells = maxGridBytes / 2
	// legendCacheSize bounds how many class sets keep a rendered legend.
	legendCacheSize = 8
)

// ClassSource provides the currently loaded class definitions.
type ClassSource interface {
	Classes() (domain.ClassSet, bool)
}

// Options configures the alert map endpoints.
type Options struct {
	StoragePath string
	Legend      legend.Options
	TileWorkers int
}

// Server exposes health, readiness, metrics and alert map HTTP endpoints.
type Server struct {
	httpServer *http.Server
	classes    ClassSource
	opts       Options
	legends    *legend.Cache
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the /v1 routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, classes ClassSource, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		classes: classes,
		opts:    opts,
		legends: legend.NewCache(opts.Legend, legendCacheSize),
		metrics: metrics,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/classes", s.handleClasses)
	mux.HandleFunc("GET /v1/legend.png", s.handleLegendPNG)
	mux.HandleFunc("GET /v1/legend.svg", s.handleLegendSVG)
	mux.HandleFunc("GET /v1/palette.vrt", s.handlePalette)
	mux.HandleFunc("POST /v1/classify", s.handleClassify)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) loadedClasses(w http.ResponseWriter) (domain.ClassSet, bool) {
	set, ok := s.classes.Classes()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "class definitions not loaded")
	}
	return set, ok
}

type classResponse struct {
	Index        int     `json:"index"`
	Label        string  `json:"label"`
	LegendLabel  *string `json:"legend_label"`
	DisplayLabel string  `json:"display_label"`
	AlertLabel   string  `json:"alert_label"`
	Color        string  `json:"color"`
	BoundsMin    string  `json:"bounds_min"`
	BoundsMax    string  `json:"bounds_max"`
}

func (s *Server) handleClasses(w http.ResponseWriter, _ *http.Request) {
	set, ok := s.loadedClasses(w)
	if !ok {
		return
	}
	out := make([]classResponse, set.Len())
	for i, c := range set.All() {
		out[i] = classResponse{
			Index:        i,
			Label:        c.Label,
			LegendLabel:  c.LegendLabel,
			DisplayLabel: domain.DisplayLabel(c),
			AlertLabel:   c.AlertLabel,
			Color:        c.Color,
			BoundsMin:    domain.FormatBound(c.BoundsMin),
			BoundsMax:    domain.FormatBound(c.BoundsMax),
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) renderLegend(w http.ResponseWriter) (legend.Legend, bool) {
	set, ok := s.loadedClasses(w)
	if !ok {
		return legend.Legend{}, false
	}
	l, err := s.legends.Render(set)
	if err != nil {
		s.metrics.RenderErrors.WithLabelValues("legend").Inc()
		s.logger.Error("render legend failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return legend.Legend{}, false
	}
	return l, true
}

func (s *Server) handleLegendPNG(w http.ResponseWriter, _ *http.Request) {
	if l, ok := s.renderLegend(w); ok {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(l.PNG)
	}
}

func (s *Server) handleLegendSVG(w http.ResponseWriter, _ *http.Request) {
	if l, ok := s.renderLegend(w); ok {
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(l.SVG)
	}
}

// handlePalette builds the descriptor for a categorical grid stored under
// the storage root; raster is a path relative to that root.
func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("raster")
	if rel == "" || !filepath.IsLocal(rel) {
		writeError(w, http.StatusBadRequest, "raster must be a path relative to the storage root")
		return
	}
	set, ok := s.loadedClasses(w)
	if !ok {
		return
	}

	path := filepath.Join(s.opts.StoragePath, rel)
	cat, err := raster.ReadCategoricalFile(path)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	doc, err := palette.Build(palette.RefFor(path, cat), set)
	if err != nil {
		s.metrics.RenderErrors.WithLabelValues("palette").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	set, ok := s.loadedClasses(w)
	if !ok {
		return
	}
	grid, err := raster.ReadGridLimit(http.MaxBytesReader(w, r.Body, maxGridBytes), maxGridCells)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cat, err := domain.ClassifyConcurrent(r.Context(), grid, set, s.opts.TileWorkers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts := domain.Histogram(cat, set.Len())
	s.metrics.CellsClassified.Add(float64(counts.Total() - counts.NoData))
	s.metrics.NoDataCells.Add(float64(counts.NoData))

	var buf bytes.Buffer
	if err := raster.WriteCategorical(&buf, cat); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
