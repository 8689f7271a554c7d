// Package assets fetches the runtime artifacts the pipeline needs but
// does not ship with: the layout detection model and the CJK fallback
// font. Files land in the user cache directory and are reused on later
// runs.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"pdf-translator/internal/logger"
)

const (
	defaultModelURL = "https://huggingface.co/wybxc/DocLayout-YOLO-DocStructBench-onnx/resolve/main/doclayout_yolo_docstructbench_imgsz1024.onnx"
	defaultFontURL  = "https://github.com/timelic/source-han-serif/releases/download/main/SourceHanSerifCN-Regular.ttf"

	modelFileName = "doclayout_yolo_docstructbench.onnx"
	fontFileName  = "SourceHanSerifCN-Regular.ttf"

	downloadTimeout = 5 * time.Minute
	maxAttempts     = 3
)

// Dir returns the asset cache directory, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	dir := filepath.Join(home, ".cache", "pdf-translator", "assets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating asset dir: %w", err)
	}
	return dir, nil
}

// EnsureModel returns the path to the layout model, downloading it on
// first use. The URL can be overridden with PDFTRANSLATOR_MODEL_URL.
func EnsureModel(ctx context.Context) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	url := defaultModelURL
	if v := os.Getenv("PDFTRANSLATOR_MODEL_URL"); v != "" {
		url = v
	}
	return EnsureFile(ctx, dir, modelFileName, url)
}

// EnsureFont returns the path to the bundled CJK font, downloading it on
// first use. The URL can be overridden with PDFTRANSLATOR_FONT_URL.
func EnsureFont(ctx context.Context) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	url := defaultFontURL
	if v := os.Getenv("PDFTRANSLATOR_FONT_URL"); v != "" {
		url = v
	}
	return EnsureFile(ctx, dir, fontFileName, url)
}

// EnsureFile returns dir/name, fetching it from url when absent or
// empty. Downloads go to a temp file first so a partial fetch never
// masquerades as a cached asset.
func EnsureFile(ctx context.Context, dir, name, url string) (string, error) {
	dest := filepath.Join(dir, name)
	if st, err := os.Stat(dest); err == nil && st.Size() > 0 {
		return dest, nil
	}

	logger.Info("downloading asset", zap.String("name", name), zap.String("url", url))
	op := func() error {
		return fetch(ctx, url, dest)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	return dest, nil
}

func fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	client := &http.Client{Timeout: downloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("status %s", resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("status %s", resp.Status))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download_*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return backoff.Permanent(err)
	}
	logger.Debug("asset downloaded", zap.String("path", dest), zap.Int64("bytes", n))
	return nil
}
