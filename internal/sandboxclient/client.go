// Package sandboxclient is a thin request/response client over the remote
// sandbox HTTP surface: exec, read, write, list, diff, search-via-exec,
// browser-screenshot, browser-extract, download, cleanup, and create.
//
// It follows the shape of the teacher's Daytona sandbox client
// (internal/tools/sandbox/daytona.go): a small struct wrapping an
// *http.Client with a base URL and a mutex-guarded owner token attached to
// every request. Retries run in a hand-rolled loop (doRetried) around
// backoff.SleepWithBackoff.
package sandboxclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/KvFxKaido/Push-sub001/internal/backoff"
	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
)

// Per-operation timeout ceilings (§4.1).
const (
	TimeoutMetadata = 30 * time.Second
	TimeoutExec     = 120 * time.Second
	TimeoutArchive  = 3 * time.Minute
	TimeoutBrowser  = 90 * time.Second
)

// retryPolicy implements §4.1's retry contract: initial backoff ~2s,
// doubling, capped at 5 attempts.
var retryPolicy = backoff.BackoffPolicy{InitialMs: 2000, MaxMs: 32000, Factor: 2, Jitter: 0.1}

const maxAttempts = 5

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client is a synchronous client over the remote sandbox HTTP surface. It
// is safe for concurrent use across sessions; the owner token lifecycle
// ("set on create, clear on cleanup") is tracked per Client value, matching
// §5's "process-wide state keyed by owner token" model scoped down to one
// sandbox per Client.
type Client struct {
	baseURL string
	http    *http.Client

	mu         sync.Mutex
	ownerToken string
}

// New constructs a Client. If cfg.HTTPClient is nil, http.DefaultClient is
// used (the per-request context still governs the timeout ceiling).
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: cfg.BaseURL, http: hc}
}

// errorPayload mirrors the sandbox's structured error response shape.
type errorPayload struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

// CreateResult is the response to POST /sandbox/create.
type CreateResult struct {
	OwnerToken string `json:"owner_token"`
}

// Create provisions a sandbox and stores the returned owner token for use
// by every subsequent call on this Client.
func (c *Client) Create(ctx context.Context) (*CreateResult, error) {
	var out CreateResult
	if err := c.doRetried(ctx, "create", TimeoutMetadata, nil, &out); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.ownerToken = out.OwnerToken
	c.mu.Unlock()
	return &out, nil
}

// Cleanup tears down the sandbox and clears the cached owner token
// regardless of outcome.
func (c *Client) Cleanup(ctx context.Context) error {
	defer func() {
		c.mu.Lock()
		c.ownerToken = ""
		c.mu.Unlock()
	}()
	return c.doRetried(ctx, "cleanup", TimeoutMetadata, map[string]any{}, nil)
}

// ExecRequest/ExecResult model POST /sandbox/exec.
type ExecRequest struct {
	Command string `json:"command"`
	Workdir string `json:"workdir,omitempty"`
}

type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Duration string `json:"duration"`
}

func (c *Client) Exec(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	var out ExecResult
	if err := c.doRetried(ctx, "exec", TimeoutExec, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadRequest/ReadResult model POST /sandbox/read.
type ReadRequest struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

type ReadResult struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	Version   string `json:"version"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

func (c *Client) Read(ctx context.Context, req ReadRequest) (*ReadResult, error) {
	var out ReadResult
	if err := c.doRetried(ctx, "read", TimeoutMetadata, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteRequest/WriteResult model POST /sandbox/write.
//
// On a version conflict the sandbox returns ok:false with code STALE_FILE;
// doRetried surfaces that as a non-retryable *pusherr.Error carrying both
// versions rather than as a transport failure, since 4xx/structured errors
// are never retried (§4.1).
type WriteRequest struct {
	Path            string `json:"path"`
	Content         string `json:"content"`
	ExpectedVersion string `json:"expected_version,omitempty"`
}

type WriteResult struct {
	OK          bool   `json:"ok"`
	BytesWritten int   `json:"bytes_written"`
	NewVersion  string `json:"new_version"`
}

func (c *Client) Write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	var out WriteResult
	if err := c.doRetried(ctx, "write", TimeoutMetadata, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRequest/ListResult model POST /sandbox/list.
type ListRequest struct {
	Path string `json:"path,omitempty"`
}

type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

type ListResult struct {
	Entries []DirEntry `json:"entries"`
}

func (c *Client) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	var out ListResult
	if err := c.doRetried(ctx, "list", TimeoutMetadata, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DiffResult models POST /sandbox/diff.
type DiffResult struct {
	Diff       string `json:"diff"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
	FilesChanged int  `json:"files_changed"`
}

func (c *Client) Diff(ctx context.Context) (*DiffResult, error) {
	var out DiffResult
	if err := c.doRetried(ctx, "diff", TimeoutMetadata, map[string]any{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadResult models POST /sandbox/download.
type DownloadResult struct {
	Base64  string `json:"base64"`
	Archive string `json:"archive"`
}

func (c *Client) Download(ctx context.Context, path string) (*DownloadResult, error) {
	var out DownloadResult
	if err := c.doRetried(ctx, "download", TimeoutArchive, map[string]any{"path": path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BrowserScreenshotResult/BrowserExtractResult model the browser ops.
type BrowserScreenshotResult struct {
	Base64 string `json:"base64"`
}

type BrowserExtractResult struct {
	Text string `json:"text"`
	HTML string `json:"html,omitempty"`
}

func (c *Client) BrowserScreenshot(ctx context.Context, url string) (*BrowserScreenshotResult, error) {
	var out BrowserScreenshotResult
	if err := c.doRetried(ctx, "browser-screenshot", TimeoutBrowser, map[string]any{"url": url}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BrowserExtract(ctx context.Context, url string) (*BrowserExtractResult, error) {
	var out BrowserExtractResult
	if err := c.doRetried(ctx, "browser-extract", TimeoutBrowser, map[string]any{"url": url}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doRetried performs a single logical RPC with retries for transport
// errors, timeouts, and 5xx responses (§4.1). Structured error payloads and
// 4xx responses are terminal and returned immediately without retrying;
// RetryWithBackoff has no notion of a non-retryable error, so this loop is
// hand-rolled around backoff.SleepWithBackoff instead, retrying only errors
// of type SANDBOX_UNREACHABLE (transport failures and 5xx) or EXEC_TIMEOUT
// (request timeouts) the way the teacher's Executor checks IsToolRetryable
// before sleeping.
func (c *Client) doRetried(ctx context.Context, op string, timeout time.Duration, body any, out any) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return pusherr.Wrap(pusherr.ExecTimeout, err)
		}

		lastErr = c.doOnce(ctx, op, timeout, body, out)
		if lastErr == nil {
			return nil
		}

		pe, ok := pusherr.As(lastErr)
		if !ok || (pe.Type != pusherr.SandboxUnreachable && pe.Type != pusherr.ExecTimeout) {
			return lastErr
		}
		if attempt >= maxAttempts {
			break
		}
		if err := backoff.SleepWithBackoff(ctx, retryPolicy, attempt); err != nil {
			return pusherr.Wrap(pusherr.ExecTimeout, err)
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, op string, timeout time.Duration, body any, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := map[string]any{}
	if body != nil {
		data, _ := json.Marshal(body)
		_ = json.Unmarshal(data, &payload)
	}

	c.mu.Lock()
	token := c.ownerToken
	c.mu.Unlock()
	if op != "create" && token != "" {
		payload["owner_token"] = token
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return pusherr.Wrap(pusherr.Unknown, err)
	}

	url := fmt.Sprintf("%s/sandbox/%s", c.baseURL, op)
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return pusherr.Wrap(pusherr.Unknown, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if reqCtx.Err() != nil {
			return pusherr.New(pusherr.ExecTimeout, fmt.Sprintf("%s timed out after %s", op, timeout))
		}
		return pusherr.New(pusherr.SandboxUnreachable, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return pusherr.New(pusherr.SandboxUnreachable, err.Error())
	}

	if resp.StatusCode >= 500 {
		return pusherr.New(pusherr.SandboxUnreachable, fmt.Sprintf("sandbox returned %d", resp.StatusCode))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return pusherr.New(pusherr.AuthFailure, fmt.Sprintf("sandbox returned %d", resp.StatusCode))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return pusherr.New(pusherr.RateLimited, "sandbox rate limited the request")
	}

	if resp.StatusCode >= 400 {
		var ep errorPayload
		if jsonErr := json.Unmarshal(respBody, &ep); jsonErr == nil && ep.Code != "" {
			if ep.Code == "STALE_FILE" {
				return decodeStaleFile(respBody)
			}
			if isNotFoundCode(ep.Code) {
				return pusherr.New(pusherr.FileNotFound, ep.Error).WithDetail("code", ep.Code)
			}
			return pusherr.New(pusherr.Unknown, ep.Error).WithDetail("code", ep.Code).WithDetail("details", ep.Details)
		}
		return pusherr.New(pusherr.Unknown, fmt.Sprintf("sandbox returned %d: %s", resp.StatusCode, string(respBody)))
	}

	// A 200 response can still carry ok:false (e.g. STALE_FILE on write).
	var okCheck struct {
		OK   *bool  `json:"ok"`
		Code string `json:"code"`
	}
	if jsonErr := json.Unmarshal(respBody, &okCheck); jsonErr == nil && okCheck.OK != nil && !*okCheck.OK {
		if okCheck.Code == "STALE_FILE" {
			return decodeStaleFile(respBody)
		}
		return pusherr.New(pusherr.WriteFailed, "sandbox write rejected").WithDetail("code", okCheck.Code)
	}

	if out != nil {
		if jsonErr := json.Unmarshal(respBody, out); jsonErr != nil {
			return pusherr.Wrap(pusherr.Unknown, jsonErr)
		}
	}
	return nil
}

// isNotFoundCode recognizes the sandbox's "no such file" error codes. The
// sandbox's exact taxonomy is its own (the spec leaves it unspecified
// beyond naming MODAL_TIMEOUT/MODAL_NETWORK_ERROR/MODAL_NOT_CONFIGURED as
// examples), so this matches on substring rather than an exhaustive list.
func isNotFoundCode(code string) bool {
	upper := strings.ToUpper(code)
	return strings.Contains(upper, "ENOENT") || strings.Contains(upper, "NOT_FOUND") || strings.Contains(upper, "NO_SUCH_FILE")
}

func decodeStaleFile(body []byte) error {
	var sf struct {
		ExpectedVersion string `json:"expected_version"`
		CurrentVersion  string `json:"current_version"`
	}
	_ = json.Unmarshal(body, &sf)
	return pusherr.New(pusherr.StaleFile, "file was modified since it was last read").
		WithDetail("expected_version", sf.ExpectedVersion).
		WithDetail("current_version", sf.CurrentVersion)
}
