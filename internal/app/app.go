// Package app is the application layer between the CLI and the document
// service. It constructs all dependencies from config, exposes high-level
// operations that accept raw string paths, and manages resource lifecycles
// on Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"docvault/internal/api"
	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/docs"
	"docvault/internal/keys"
	"docvault/internal/model"
	"docvault/internal/objectstore"
	"docvault/internal/ocr"
)

// App wires the metadata store, object store, key provider, OCR workers,
// and the document service together. The caller must call Close when done.
type App struct {
	cfg     *config.Config
	store   docs.MetadataStore
	blobs   docs.ObjectStore
	keys    docs.KeyProvider
	coord   *ocr.Coordinator
	service *docs.Service
	logger  docs.Logger
	zl      *zap.Logger
}

// New creates a fully wired App from the given config.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	zl, err := newLogger(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &zapAdapter{l: zl.Sugar()}

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating metadata store: %w", err)
	}

	blobs, err := objectstore.NewStoreFromConfig(ctx, cfg.Storage)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("creating object store: %w", err)
	}
	if err := blobs.ValidateSetup(ctx); err != nil {
		closeStore(store)
		return nil, fmt.Errorf("validating object store: %w", err)
	}

	kp, err := keys.NewProviderFromConfig(cfg.Keys)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("creating key provider: %w", err)
	}

	coord := ocr.NewCoordinator(store, ocr.NewStubExtractor(), ocr.Options{
		Workers:    cfg.OCR.Workers,
		QueueSize:  cfg.OCR.QueueSize,
		MaxRetries: cfg.OCR.MaxRetries,
		Timeout:    time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
		Backoff:    time.Duration(cfg.OCR.BackoffSeconds) * time.Second,
	}, logger)
	coord.Start()

	policy := docs.Policy{
		RetentionWindow:     cfg.Retention.RetentionWindow(),
		MaxVersionsRetained: cfg.Retention.MaxVersions,
	}
	limits := docs.Limits{
		MaxSizeBytes:        cfg.Documents.MaxSizeBytes,
		AllowedContentTypes: cfg.Documents.AllowedContentTypes,
		StoragePrefix:       cfg.Documents.StoragePrefix,
	}

	svc := docs.NewService(store, blobs, kp, coord, policy, limits,
		logger, docs.RealClock{}, docs.UUIDGenerator{})

	return &App{
		cfg:     cfg,
		store:   store,
		blobs:   blobs,
		keys:    kp,
		coord:   coord,
		service: svc,
		logger:  logger,
		zl:      zl,
	}, nil
}

// unlocker is implemented by key providers that hold a passphrase-protected
// identity, such as the local keystore.
type unlocker interface {
	Unlock(passphrase string) error
}

// NeedsPassphrase reports whether the configured key provider requires an
// Unlock before documents can be decrypted.
func (a *App) NeedsPassphrase() bool {
	_, ok := a.keys.(unlocker)
	return ok
}

// Unlock makes the key provider's private identity available for
// decryption. It is a no-op for providers without one.
func (a *App) Unlock(passphrase string) error {
	u, ok := a.keys.(unlocker)
	if !ok {
		return nil
	}
	return u.Unlock(passphrase)
}

// Upload reads the file at rawPath and stores it as a new version for the
// owner and document type. The content type is derived from the file
// extension.
func (a *App) Upload(ctx context.Context, ownerID, documentType, rawPath string) (*model.DocumentRecord, error) {
	contentType := mime.TypeByExtension(filepath.Ext(rawPath))
	if contentType == "" {
		return nil, fmt.Errorf("cannot determine content type of %s", rawPath)
	}

	f, err := os.Open(rawPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", rawPath, err)
	}
	defer f.Close()

	return a.service.Upload(ctx, ownerID, documentType, f, contentType)
}

// Retrieve returns the decrypted content of the given document version.
func (a *App) Retrieve(ctx context.Context, documentID string) (*model.DocumentRecord, []byte, error) {
	return a.service.Retrieve(ctx, documentID)
}

// RetrieveCurrent returns the decrypted content of the owner's current
// version for the given document type.
func (a *App) RetrieveCurrent(ctx context.Context, ownerID, documentType string) (*model.DocumentRecord, []byte, error) {
	return a.service.RetrieveCurrent(ctx, ownerID, documentType)
}

// Delete soft-deletes the given document version.
func (a *App) Delete(ctx context.Context, documentID string) error {
	return a.service.Delete(ctx, documentID)
}

// Versions lists the version history for the owner and document type,
// newest first.
func (a *App) Versions(ctx context.Context, ownerID, documentType string) ([]*model.DocumentRecord, error) {
	return a.service.ListVersions(ctx, ownerID, documentType)
}

// Sweep runs one retention sweep pass and returns the number of versions
// purged.
func (a *App) Sweep(ctx context.Context) (int, error) {
	return a.service.Sweep(ctx)
}

// Serve runs the HTTP API and the periodic retention sweep until ctx is
// cancelled or the server fails.
func (a *App) Serve(ctx context.Context) error {
	interval, err := a.cfg.Retention.SweepIntervalDuration()
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runSweeper(interval, stop)
	}()

	srv := &http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: api.NewRouter(a.service, a.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	a.logger.Info("server listening", "addr", a.cfg.Server.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	close(stop)
	wg.Wait()
	return err
}

// runSweeper purges expired versions on the configured interval until the
// stop channel closes.
func (a *App) runSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// One pass must not outlive its slot in the schedule.
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			purged, err := a.service.Sweep(ctx)
			cancel()
			if err != nil {
				a.logger.Error("retention sweep failed", "error", err)
				continue
			}
			if purged > 0 {
				a.logger.Info("retention sweep finished", "purged", purged)
			}
		}
	}
}

// Close drains the OCR queue and releases all resources.
func (a *App) Close() error {
	var firstErr error

	// Let queued extraction jobs finish before the store goes away.
	a.coord.Close()

	if err := closeStore(a.store); err != nil {
		firstErr = fmt.Errorf("closing metadata store: %w", err)
	}

	_ = a.zl.Sync()

	return firstErr
}

func closeStore(store docs.MetadataStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
