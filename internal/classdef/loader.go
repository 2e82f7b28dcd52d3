// Package classdef loads alert class definitions from a local file or an
// HTTP(S) URL.
package classdef

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

const (
	maxBodySnippet = 512
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// Loader reads class definitions. It keeps no cache: every Load re-reads
// the source.
type Loader struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewLoader creates a loader whose remote fetches time out after timeout.
func NewLoader(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Loader {
	return &Loader{
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// Load fetches and validates the class definitions at source, which is a
// filesystem path or an http:// or https:// URL.
func (l *Loader) Load(ctx context.Context, source string) (domain.ClassSet, error) {
	start := time.Now()
	data, err := l.read(ctx, source)
	if err == nil {
		var set domain.ClassSet
		if set, err = domain.ParseClassDefinitions(data, source); err == nil {
			l.metrics.ClassesLoaded.Set(float64(set.Len()))
			l.logger.Debug("class definitions loaded",
				"source", source,
				"classes", set.Len(),
				"duration", time.Since(start),
			)
			return set, nil
		}
	}
	l.metrics.ClassLoadErrors.WithLabelValues(domain.ErrorKind(err)).Inc()
	return domain.ClassSet{}, err
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, error) {
	if isRemote(source) {
		return l.fetch(ctx, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, unavailable(source, "read file", err)
	}
	return data, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, unavailable(url, "create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(url, "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return nil, &domain.DefinitionError{
			Kind:   domain.ErrSourceUnavailable,
			Source: url,
			Index:  -1,
			Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(url, "read body", err)
	}
	return data, nil
}

func isRemote(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func unavailable(source, detail string, err error) error {
	return &domain.DefinitionError{
		Kind:   domain.ErrSourceUnavailable,
		Source: source,
		Index:  -1,
		Detail: detail,
		Err:    err,
	}
}

// LoadWithRetry calls l.Load up to attempts+1 times, backing off between
// tries. Only ErrSourceUnavailable is retried; definition errors are
// returned immediately.
func LoadWithRetry(ctx context.Context, l *Loader, source string, attempts int) (domain.ClassSet, error) {
	backoff := initialBackoff
	for try := 0; ; try++ {
		set, err := l.Load(ctx, source)
		if err == nil || !errors.Is(err, domain.ErrSourceUnavailable) || try >= attempts {
			return set, err
		}
		l.logger.Warn("class definitions unavailable, retrying",
			"source", source,
			"attempt", try+1,
			"backoff", backoff,
			"error", err,
		)
		if !retry.SleepWithContext(ctx, backoff) {
			return domain.ClassSet{}, errors.Join(err, ctx.Err())
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// Holder keeps the most recently loaded class set for long-running
// servers. Reload swaps the set atomically; a failed reload keeps the
// previous one.
type Holder struct {
	loader *Loader
	source string
	set    atomic.Pointer[domain.ClassSet]
}

// NewHolder creates a holder that loads from source on Reload.
func NewHolder(loader *Loader, source string) *Holder {
	return &Holder{loader: loader, source: source}
}

// Reload re-reads the source and replaces the held set on success.
func (h *Holder) Reload(ctx context.Context) error {
	set, err := h.loader.Load(ctx, h.source)
	if err != nil {
		return err
	}
	h.set.Store(&set)
	return nil
}

// Classes returns the held set and whether one has been loaded.
func (h *Holder) Classes() (domain.ClassSet, bool) {
	p := h.set.Load()
	if p == nil {
		return domain.ClassSet{}, false
	}
	return *p, true
}

// CheckReadiness reports ready once a class set has been loaded.
func (h *Holder) CheckReadiness(_ context.Context) error {
	if h.set.Load() == nil {
		return errors.New("class definitions not loaded")
	}
	return nil
}
