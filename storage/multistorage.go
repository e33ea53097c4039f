package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/enclave-signer/interfaces"
)

// ErrInsufficientReplicas is returned by MultiStorageBackend.Store when fewer
// backends than required accepted the write.
var ErrInsufficientReplicas = errors.New("insufficient storage replicas")

// MultiStorageBackend replicates content over several backends. Stores fan out
// to every available backend; fetches return the first copy whose SHA-256
// matches the requested content ID.
type MultiStorageBackend struct {
	backends    []interfaces.StorageBackend
	minReplicas int
	log         *slog.Logger
}

func NewMultiStorageBackend(backends []interfaces.StorageBackend, log *slog.Logger) *MultiStorageBackend {
	if log == nil {
		log = slog.Default()
	}

	return &MultiStorageBackend{
		backends:    backends,
		minReplicas: 1,
		log:         log,
	}
}

// WithMinReplicas sets how many backends must accept a Store for it to succeed.
func (m *MultiStorageBackend) WithMinReplicas(n int) *MultiStorageBackend {
	if n < 1 {
		n = 1
	}
	m.minReplicas = n
	return m
}

func (m *MultiStorageBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	var errs []error
	// Content is reported missing only if every backend answered and none had it.
	notFound := len(m.backends) > 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			notFound = false
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			m.log.Debug("Backend unavailable",
				slog.String("backend", backend.Name()),
				slog.String("contentID", id.String()))
			continue
		}

		data, err := backend.Fetch(ctx, id, contentType)
		if err != nil {
			if !errors.Is(err, interfaces.ErrContentNotFound) {
				notFound = false
			}
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to fetch from backend",
				slog.String("backend", backend.Name()),
				slog.String("contentID", id.String()),
				"err", err)
			continue
		}

		if got := interfaces.ComputeID(data); !got.Equal(id) {
			notFound = false
			errs = append(errs, fmt.Errorf("%s: content hash mismatch", backend.Name()))
			m.log.Warn("Backend returned corrupted content",
				slog.String("backend", backend.Name()),
				slog.String("contentID", id.String()),
				slog.String("actualID", got.String()))
			continue
		}

		m.log.Info("Fetched content",
			slog.String("backend", backend.Name()),
			slog.String("contentID", id.String()),
			slog.Duration("duration", time.Since(start)))
		return data, nil
	}

	m.log.Error("All backends failed to fetch content",
		slog.String("contentID", id.String()),
		slog.Int("failedBackends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	if notFound {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, id)
	}
	return nil, fmt.Errorf("%w: all backends failed to fetch %s: %w", interfaces.ErrBackendUnavailable, id, errors.Join(errs...))
}

func (m *MultiStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	start := time.Now()
	id := interfaces.ComputeID(data)
	stored := 0
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend", backend.Name()))
			continue
		}

		got, err := backend.Store(ctx, data, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend", backend.Name()),
				"err", err)
			continue
		}
		if !got.Equal(id) {
			errs = append(errs, fmt.Errorf("%s: returned content ID %s", backend.Name(), got))
			m.log.Warn("Inconsistent content ID from backend",
				slog.String("backend", backend.Name()),
				slog.String("expectedID", id.String()),
				slog.String("actualID", got.String()))
			continue
		}
		stored++
	}

	if stored < m.minReplicas {
		m.log.Error("Not enough backends stored content",
			slog.Int("stored", stored),
			slog.Int("required", m.minReplicas),
			slog.Duration("duration", time.Since(start)))
		return id, fmt.Errorf("%w: stored %d of %d required: %w", ErrInsufficientReplicas, stored, m.minReplicas, errors.Join(errs...))
	}

	m.log.Info("Stored content",
		slog.String("contentID", id.String()),
		slog.String("type", contentType.String()),
		slog.Int("replicas", stored),
		slog.Duration("duration", time.Since(start)))
	return id, nil
}

// Available reports whether any backend is reachable.
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
