package gateways

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ochairo/alembic/internal/domain/entities"
	"github.com/ochairo/alembic/internal/domain/interfaces"
)

const userAgent = "alembic/1.0"

// DownloaderConfig tunes the retrying HTTP client
type DownloaderConfig struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// DefaultDownloaderConfig returns the settings used by the CLI
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		RetryMax:     5,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 30 * time.Second,
		Timeout:      5 * time.Minute, // large source tarballs
	}
}

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger interfaces.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, kvFields(keysAndValues)...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, kvFields(keysAndValues)...)
}

// kvFields pairs up retryablehttp's alternating keys and values
func kvFields(kv []interface{}) []interfaces.Field {
	fields := make([]interfaces.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, interfaces.F(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}

// Downloader fetches pristine source tarballs. Downloads are retried; the
// packaging pipeline itself never retries.
type Downloader struct {
	client    *retryablehttp.Client
	archiver  *Archiver
	checksums *ChecksumVerifier
	logger    interfaces.Logger
}

// NewDownloader creates a new downloader
func NewDownloader(logger interfaces.Logger, config DownloaderConfig) *Downloader {
	logger = interfaces.OrNoOp(logger)

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	client.RetryWaitMin = config.RetryWaitMin
	client.RetryWaitMax = config.RetryWaitMax
	client.HTTPClient.Timeout = config.Timeout
	client.Logger = &retryLogger{logger: logger}

	return &Downloader{
		client:    client,
		archiver:  NewArchiver(logger),
		checksums: NewChecksumVerifier(),
		logger:    logger,
	}
}

// FetchSource downloads the recipe source, verifies its SHA-256 and
// extracts it into destDir, which must be empty or absent
func (d *Downloader) FetchSource(ctx context.Context, src entities.RecipeSource, destDir string) error {
	if src.URL == "" {
		return fmt.Errorf("recipe has no source url")
	}
	if entries, err := os.ReadDir(destDir); err == nil && len(entries) > 0 {
		return fmt.Errorf("source directory %s is not empty", destDir)
	}

	tmp, err := os.CreateTemp("", "alembic-source-*.tar.gz")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	//nolint:errcheck // Best-effort cleanup of the temp download
	defer os.Remove(tmp.Name())

	written, err := d.download(ctx, src.URL, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	d.logger.Info("Downloaded source", interfaces.F("url", src.URL), interfaces.F("bytes", written))

	if src.SHA256 != "" {
		if err := d.checksums.VerifyChecksum(ctx, tmp.Name(), src.SHA256); err != nil {
			return err
		}
	} else {
		d.logger.Warn("Recipe source has no sha256, skipping verification", interfaces.F("url", src.URL))
	}

	if err := os.MkdirAll(destDir, 0750); err != nil {
		return fmt.Errorf("failed to create source directory: %w", err)
	}
	//nolint:gosec // G304: temp file created above
	f, err := os.Open(tmp.Name())
	if err != nil {
		return fmt.Errorf("failed to reopen download: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	if err := d.archiver.ExtractTarball(f, destDir, src.StripComponents); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	return nil
}

func (d *Downloader) download(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return written, fmt.Errorf("failed to write file: %w", err)
	}
	return written, nil
}
