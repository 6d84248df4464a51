package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/watchdesk/watchdesk/internal/dispatch"
)

// Download fetches ref (absolute or server-relative) into dir and returns
// the local path. The file name is derived from the URL so repeated
// downloads of the same artifact land on the same path.
func (c *Client) Download(ctx context.Context, ref, dir string) (string, error) {
	const op = "download artifact"

	target, err := c.Resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("%s: create cache dir: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	// Only send the credential to our own server.
	if req.URL.Host == c.base.Host {
		if err := c.authorize(req, op); err != nil {
			return "", err
		}
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &dispatch.TransientError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classify(op, "", resp.StatusCode, data)
	}

	path := filepath.Join(dir, ArtifactName(target))
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("%s: create temp file: %w", op, err)
	}
	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, 64<<20)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", &dispatch.TransientError{Op: op, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%s: close temp file: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%s: store artifact: %w", op, err)
	}
	return path, nil
}

// ArtifactName is the stable local file name for an artifact URL.
func ArtifactName(rawURL string) string {
	ext := filepath.Ext(strings.SplitN(rawURL, "?", 2)[0])
	if len(ext) > 5 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String() + ext
}
