package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"storyforge/internal/config"
	"storyforge/internal/services"
	"storyforge/internal/services/llm"
)

// statfs reports free bytes for the filesystem holding path.
var statfs = func(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// CheckLLM verifies that the script model is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLM) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProbeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckGeneration looks up the configured image model, which verifies both
// connectivity and the key without spending generation quota.
func CheckGeneration(ctx context.Context, cfg config.Generation) Result {
	const name = "Generation backend"

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s?key=%s", base, url.PathEscape(cfg.ImageModel), url.QueryEscape(cfg.APIKey))
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: "invalid base url"}
	}
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return Result{Name: name, Detail: summarizeProbeError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: cfg.ImageModel + " available"}
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: fmt.Sprintf("auth failed (%d, check api key)", resp.StatusCode)}
	case http.StatusNotFound:
		return Result{Name: name, Detail: fmt.Sprintf("model %s not found", cfg.ImageModel)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("model lookup failed (%d)", resp.StatusCode)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least need
// bytes available to unprivileged writers.
func CheckFreeSpace(name, path string, need uint64) Result {
	free, err := statfs(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	detail := fmt.Sprintf("%s free, need %s", humanize.IBytes(free), humanize.IBytes(need))
	return Result{Name: name, Passed: free >= need, Detail: detail}
}

// RequireFreeSpace is CheckFreeSpace as an error for callers that must stop.
func RequireFreeSpace(path string, need uint64) error {
	if need == 0 {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	result := CheckFreeSpace("free space", path, need)
	if result.Passed {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "free space", path+" has "+result.Detail, nil)
}

// summarizeProbeError produces a human-readable summary for probe failures.
func summarizeProbeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
