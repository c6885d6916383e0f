package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/raditia/duet-media/internal/mediastore"
)

// ErrUnknownTool is returned when a requested tool name has no configured
// endpoint. Callers should treat it as invalid input, not an upstream
// failure.
var ErrUnknownTool = errors.New("unknown tool")

// tempTag marks intermediate assets so they are recognizable in the store
// if cleanup ever lags behind.
const tempTag = "temp"

// Releaser tracks temporary assets and guarantees their best-effort
// deletion. Implemented by the cleanup coordinator.
type Releaser interface {
	Track(ctx context.Context, publicID string, kind mediastore.Kind)
	Release(ctx context.Context, publicID string, kind mediastore.Kind)
}

// Endpoint describes one external AI tool endpoint. The uploaded asset URL
// is passed as the "url" query parameter, an optional prompt as "prompt".
type Endpoint struct {
	URL    string
	Method string
}

// Pipeline runs the full upload -> transform -> cleanup sequence for an AI
// media tool. Steps are strictly ordered; the temporary asset is released
// whether the transform succeeds or fails.
type Pipeline struct {
	uploader  *mediastore.Uploader
	releaser  Releaser
	executor  *Executor
	endpoints map[string]Endpoint
	logger    zerolog.Logger
}

// NewPipeline wires a Pipeline over the given collaborators.
func NewPipeline(uploader *mediastore.Uploader, releaser Releaser, executor *Executor, endpoints map[string]Endpoint, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		uploader:  uploader,
		releaser:  releaser,
		executor:  executor,
		endpoints: endpoints,
		logger:    logger,
	}
}

// Tools lists the configured tool names, sorted.
func (p *Pipeline) Tools() []string {
	names := make([]string, 0, len(p.endpoints))
	for name := range p.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run uploads file as a temporary asset, invokes the named tool against its
// URL through the retry executor, and releases the temporary asset
// unconditionally afterwards.
func (p *Pipeline) Run(ctx context.Context, file io.Reader, filename string, kind mediastore.Kind, tool, prompt string) ([]byte, error) {
	endpoint, ok := p.endpoints[tool]
	if !ok {
		return nil, fmt.Errorf("transform: %w %q", ErrUnknownTool, tool)
	}

	asset, err := p.uploader.Upload(ctx, file, filename, kind, mediastore.UploadOptions{
		Tags: []string{tempTag, tool},
	})
	if err != nil {
		return nil, err
	}

	p.releaser.Track(ctx, asset.PublicID, kind)
	defer p.releaser.Release(ctx, asset.PublicID, kind)

	method := endpoint.Method
	if method == "" {
		method = http.MethodGet
	}

	build := func() (*http.Request, error) {
		target, err := buildToolURL(endpoint.URL, asset.SecureURL, prompt)
		if err != nil {
			return nil, err
		}
		return http.NewRequestWithContext(ctx, method, target, nil)
	}

	return p.executor.Do(ctx, build)
}

func buildToolURL(base, assetURL, prompt string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("url", assetURL)
	if strings.TrimSpace(prompt) != "" {
		q.Set("prompt", prompt)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
