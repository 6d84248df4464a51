package alert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdesk/watchdesk/internal/cachemanager"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/tracing"
)

const artifactTTL = 6 * time.Hour

// Downloader fetches a reference into dir and returns the local path.
type Downloader interface {
	Download(ctx context.Context, ref, dir string) (string, error)
	Resolve(ref string) (string, error)
}

type artifactKey string

type artifactRequest struct {
	ref string
}

// ArtifactCache downloads each recording once and serves the local copy
// for later alerts on the same call.
type ArtifactCache struct {
	dir    string
	dl     Downloader
	cache  *cachemanager.ReadThroughCache[artifactKey, string, artifactRequest]
	tracer trace.Tracer
}

// NewArtifactCache stores recordings under dir.
func NewArtifactCache(dir string, dl Downloader, tracer trace.Tracer) *ArtifactCache {
	a := &ArtifactCache{dir: dir, dl: dl, tracer: tracer}
	mem := cachemanager.NewInMemoryCacheManager[artifactKey, string]("dispatch-audio", artifactTTL, cachemanager.DefaultCleanupInterval)
	a.cache = cachemanager.NewReadThroughCache[artifactKey, string, artifactRequest](mem, a.download, false)
	return a
}

// Fetch returns a local path for ref. Local file paths pass through.
func (a *ArtifactCache) Fetch(ctx context.Context, ref string) (string, error) {
	if isLocal(ref) {
		return ref, nil
	}
	abs, err := a.dl.Resolve(ref)
	if err != nil {
		return "", err
	}
	path, err := a.cache.GetWithRefresh(ctx, artifactKey(abs), artifactRequest{ref: abs}, artifactTTL)
	if err != nil {
		return "", err
	}
	// Evicted from disk by a cleaner; fetch again.
	if _, statErr := os.Stat(path); statErr != nil {
		return a.download(ctx, artifactRequest{ref: abs})
	}
	return path, nil
}

func (a *ArtifactCache) download(ctx context.Context, req artifactRequest) (string, error) {
	ctx, span := tracing.Start(ctx, a.tracer, tracing.SpanArtifactFetch, attribute.String("artifact.ref", req.ref))
	path, err := a.dl.Download(ctx, req.ref, a.dir)
	tracing.Finish(span, err, "")
	if err != nil {
		return "", err
	}
	log.Debug(log.CatCache, "artifact downloaded", "ref", req.ref, "path", path)
	return path, nil
}

func isLocal(ref string) bool {
	if strings.Contains(ref, "://") {
		return false
	}
	if !filepath.IsAbs(ref) {
		return false
	}
	_, err := os.Stat(ref)
	return err == nil
}
