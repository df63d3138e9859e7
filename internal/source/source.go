// Package source resolves the video a caption job works on.
//
// A Source either names a file already on disk or downloads one over
// HTTP(S) into the job workspace. The caption runner only ever sees the
// local path returned by Fetch.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"captioner/internal/services"
)

const (
	stageSource      = "source"
	defaultExtension = ".mp4"
	userAgent        = "captioner/0.1.0"
)

// Source yields a readable local video file.
type Source interface {
	// Fetch makes the video available on disk and returns its path. Remote
	// sources are written inside destDir.
	Fetch(ctx context.Context, destDir string) (string, error)
	String() string
}

// Parse picks an HTTP source for http:// and https:// arguments and a local
// file source for anything else.
func Parse(arg string, client *http.Client) Source {
	arg = strings.TrimSpace(arg)
	lower := strings.ToLower(arg)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return HTTP(arg, client)
	}
	return Local(arg)
}

// Name returns a short human label for s, suitable for output file names.
func Name(s Source) string {
	if s == nil {
		return ""
	}
	raw := s.String()
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		raw = path.Base(u.Path)
		if raw == "/" || raw == "." || raw == "" {
			return u.Host
		}
	} else {
		raw = filepath.Base(raw)
	}
	return strings.TrimSuffix(raw, path.Ext(raw))
}

type localSource struct {
	path string
}

// Local returns a source for a file already on disk. The file is used in
// place and never copied or removed.
func Local(p string) Source {
	return localSource{path: strings.TrimSpace(p)}
}

func (l localSource) String() string { return l.path }

func (l localSource) Fetch(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.path == "" {
		return "", services.Wrap(services.ErrValidation, stageSource, "open", "video path required", nil)
	}
	abs, err := filepath.Abs(l.path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, stageSource, "open", l.path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, stageSource, "open", "video not readable", err)
	}
	if !info.Mode().IsRegular() {
		return "", services.Wrap(services.ErrValidation, stageSource, "open", abs+" is not a regular file", nil)
	}
	file, err := os.Open(abs)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, stageSource, "open", "video not readable", err)
	}
	_ = file.Close()
	return abs, nil
}

type httpSource struct {
	url    string
	client *http.Client
}

// HTTP returns a source that downloads rawURL. A nil client uses
// http.DefaultClient; callers bound the download through ctx.
func HTTP(rawURL string, client *http.Client) Source {
	if client == nil {
		client = http.DefaultClient
	}
	return httpSource{url: strings.TrimSpace(rawURL), client: client}
}

func (h httpSource) String() string { return h.url }

func (h httpSource) Fetch(ctx context.Context, destDir string) (string, error) {
	parsed, err := url.Parse(h.url)
	if err != nil || parsed.Host == "" {
		return "", services.Wrap(services.ErrValidation, stageSource, "download", fmt.Sprintf("invalid url %q", h.url), err)
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if ext == "" || len(ext) > 6 {
		ext = defaultExtension
	}
	dest := filepath.Join(destDir, "input"+ext)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return "", services.Wrap(services.ErrDownload, stageSource, "download", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", services.WrapContext(ctx, services.ErrDownload, stageSource, "download", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", services.Wrap(services.ErrDownload, stageSource, "download", fmt.Sprintf("server returned %s", resp.Status), nil)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", services.Wrap(services.ErrWorkspace, stageSource, "download", "create destination", err)
	}
	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dest)
		return "", services.WrapContext(ctx, services.ErrDownload, stageSource, "download", "read body", copyErr)
	}
	if written == 0 {
		_ = os.Remove(dest)
		return "", services.Wrap(services.ErrDownload, stageSource, "download", "empty response body", nil)
	}
	return dest, nil
}
