package dnn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// fetcher locates a model asset on disk, downloading it into the cache
// directory when only a URL is known.
type fetcher struct {
	client   *http.Client
	cacheDir string
	logger   *slog.Logger
}

func (f fetcher) resolve(ctx context.Context, localPath, rawURL string) (string, error) {
	if localPath != "" {
		if _, err := os.Stat(localPath); err == nil {
			return localPath, nil
		}
		if rawURL == "" {
			return "", fmt.Errorf("asset %s not found", localPath)
		}
	}
	if rawURL == "" {
		return "", errors.New("no asset path or URL configured")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse asset url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("asset url %s has no file name", rawURL)
	}

	dir := f.cacheDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "facegate-models")
	}
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := f.download(ctx, rawURL, target); err != nil {
		return "", err
	}
	f.logger.Info("downloaded model asset", "url", rawURL, "path", target)
	return target, nil
}

func (f fetcher) download(ctx context.Context, rawURL, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("install %s: %w", target, err)
	}
	return nil
}
