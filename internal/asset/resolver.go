package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"

	"storyforge/internal/logging"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultCacheTTL     = 30 * time.Minute
	defaultCacheMaxMB   = 64
	maxFetchBytes       = 64 << 20
	cacheShards         = 16
)

// Asset is a materialized reference.
type Asset struct {
	Data     []byte
	MIMEType string
	Source   Reference
}

// Resolver materializes references into bytes. Remote responses are cached by
// URL so repeated archive builds in one process do not refetch.
type Resolver struct {
	httpClient *http.Client
	cache      *bigcache.BigCache
	logger     *slog.Logger
}

// ResolverConfig sizes the fetch client and response cache.
type ResolverConfig struct {
	FetchTimeout time.Duration
	CacheTTL     time.Duration
	CacheMaxMB   int
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient overrides the fetch client.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver constructs a Resolver with its response cache.
func NewResolver(ctx context.Context, cfg ResolverConfig, opts ...ResolverOption) (*Resolver, error) {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheMaxMB <= 0 {
		cfg.CacheMaxMB = defaultCacheMaxMB
	}

	cacheCfg := bigcache.DefaultConfig(cfg.CacheTTL)
	// Few shards keep each shard large enough to hold a full image.
	cacheCfg.Shards = cacheShards
	cacheCfg.HardMaxCacheSize = cfg.CacheMaxMB
	cacheCfg.MaxEntriesInWindow = 256
	cacheCfg.MaxEntrySize = 64 << 10
	cacheCfg.Verbose = false
	cache, err := bigcache.New(ctx, cacheCfg)
	if err != nil {
		return nil, fmt.Errorf("asset resolver: create cache: %w", err)
	}

	r := &Resolver{
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		cache:      cache,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "asset-resolver")
	return r, nil
}

// Close releases the response cache.
func (r *Resolver) Close() error {
	if r == nil || r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

// Resolve classifies ref and returns its bytes. Every failure is a
// *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, ref, filename string) (Asset, error) {
	classified, err := Classify(ref, filename)
	if err != nil {
		return Asset{}, err
	}
	switch v := classified.(type) {
	case InlineDataURI:
		return Asset{Data: v.Data, MIMEType: v.MIMEType, Source: v}, nil
	case RawBase64:
		return Asset{Data: v.Data, MIMEType: v.GuessedMIME, Source: v}, nil
	case RemoteURL:
		data, mimeType, err := r.fetch(ctx, v.URL)
		if err != nil {
			return Asset{}, &ResolutionError{Ref: ref, Err: err}
		}
		if mimeType == "" {
			mimeType = GuessMIME(filename)
		}
		return Asset{Data: data, MIMEType: mimeType, Source: v}, nil
	default:
		return Asset{}, &ResolutionError{Ref: ref, Err: fmt.Errorf("unsupported reference %T", classified)}
	}
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if strings.HasPrefix(strings.ToLower(rawURL), "blob:") {
		return nil, "", errors.New("blob URLs are only valid inside the page that created them")
	}
	if cached, err := r.cache.Get(rawURL); err == nil {
		mimeType, data := unpackCached(cached)
		r.logger.Debug("remote asset cache hit", logging.String("url", rawURL), logging.Int("bytes", len(data)))
		return data, mimeType, nil
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		r.logger.Warn("remote asset cache read failed",
			logging.String("url", rawURL),
			logging.Error(err),
			logging.String(logging.FieldEventType, "asset_cache_error"),
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, "", fmt.Errorf("fetch: http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxFetchBytes {
		return nil, "", fmt.Errorf("fetch: body exceeds %d bytes", maxFetchBytes)
	}
	mimeType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])

	if err := r.cache.Set(rawURL, packCached(mimeType, data)); err != nil {
		r.logger.Debug("remote asset not cached", logging.String("url", rawURL), logging.Error(err))
	}
	return data, mimeType, nil
}

// Cached entries are "<mime>\n<body>".
func packCached(mimeType string, data []byte) []byte {
	out := make([]byte, 0, len(mimeType)+1+len(data))
	out = append(out, mimeType...)
	out = append(out, '\n')
	return append(out, data...)
}

func unpackCached(entry []byte) (string, []byte) {
	idx := bytes.IndexByte(entry, '\n')
	if idx < 0 {
		return "", entry
	}
	return string(entry[:idx]), entry[idx+1:]
}
