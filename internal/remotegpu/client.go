package remotegpu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/clipforge/exportd/internal/blob"
	"github.com/clipforge/exportd/internal/platform/dbctx"
	"github.com/clipforge/exportd/internal/platform/envutil"
	"github.com/clipforge/exportd/internal/platform/logger"
)

// RemoteStatus is the terminal-or-not state of a submitted remote job, as
// translated from whatever shape the remote compute service reports.
type RemoteStatus struct {
	Done     bool
	Percent  int
	Phase    string
	Message  string
	Outputs  []string
	ErrorMsg string
}

// Client adapts a driver's progress/input/output contract to a remote
// compute service (spec §4.7): submit, poll to terminal, download the
// result into the local Blob Store.
type Client struct {
	http    *http.Client
	baseURL string
	store   blob.Store
	log     *logger.Logger
	leases  *LeaseStore

	maxRetries int
	pollEvery  time.Duration
}

func NewClientFromEnv(store blob.Store, leases *LeaseStore, log *logger.Logger) *Client {
	log = log.With("component", "remotegpu.Client")
	return &Client{
		http:       &http.Client{Timeout: 30 * time.Second},
		baseURL:    envutil.GetEnv("REMOTE_GPU_BASE_URL", "http://remote-gpu.internal", log),
		store:      store,
		log:        log,
		leases:     leases,
		maxRetries: envutil.Int("REMOTE_GPU_MAX_RETRIES", 5),
		pollEvery:  time.Duration(envutil.Int("REMOTE_GPU_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
	}
}

type submitRequest struct {
	Kind         string         `json:"kind"`
	Instructions map[string]any `json:"instructions"`
	Inputs       []string       `json:"input_urls"`
}

type submitResponse struct {
	RemoteJobID string `json:"remote_job_id"`
}

// Submit uploads nothing itself — it expects the caller to have already
// produced presigned input URLs via the Blob Store, since that's the
// contract §4.7 describes ("produce presigned upload URLs if the caller
// has the bytes; otherwise pass existing blob-store keys").
func (c *Client) Submit(ctx context.Context, kind string, inputURLs []string, instructions map[string]any) (string, error) {
	req := submitRequest{Kind: kind, Instructions: instructions, Inputs: inputURLs}
	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/jobs", req, &resp); err != nil {
		return "", fmt.Errorf("submit remote gpu job: %w", err)
	}
	return resp.RemoteJobID, nil
}

// Poll returns the remote job's current translated status. Callers loop
// this at pollEvery until Done, feeding percent/phase/message into the
// driver's own progress callback.
func (c *Client) Poll(ctx context.Context, remoteJobID string) (RemoteStatus, error) {
	var st RemoteStatus
	path := fmt.Sprintf("/jobs/%s", remoteJobID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &st); err != nil {
		return RemoteStatus{}, fmt.Errorf("poll remote gpu job %s: %w", remoteJobID, err)
	}
	return st, nil
}

// Cancel issues a best-effort remote cancel; callers ignore its error when
// unwinding after a timeout, since the point is to not leave the remote
// job running, not to guarantee it stopped.
func (c *Client) Cancel(ctx context.Context, remoteJobID string) error {
	path := fmt.Sprintf("/jobs/%s/cancel", remoteJobID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// Download streams the named remote output straight into the Blob Store
// under destCategory, the same destination a local render of the same
// plan would use (CategoryOutput for a final render, CategoryIntermediate
// for a per-clip render that feeds a later concatenation step).
func (c *Client) Download(ctx context.Context, remoteOutputURL string, destCategory blob.Category, destKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteOutputURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.doWithRetry(func() (*http.Response, error) { return c.http.Do(req) })
	if err != nil {
		return fmt.Errorf("download remote gpu output: %w", err)
	}
	defer resp.Body.Close()

	dbc := dbctx.Context{Ctx: ctx}
	if err := c.store.UploadFile(dbc, destCategory, destKey, resp.Body); err != nil {
		return fmt.Errorf("upload downloaded remote output: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doWithRetry(func() (*http.Response, error) {
		// Each attempt needs a fresh body: the previous attempt consumed it.
		if req.GetBody != nil {
			b, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = b
		}
		return c.http.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("remote gpu service returned %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doWithRetry mirrors the teacher's exponential-backoff retry on
// transient remote errors, generalized from gRPC status codes (the same
// Unavailable/ResourceExhausted/DeadlineExceeded set) to their closest
// HTTP analogues (503/429/504), since this client speaks HTTP to the
// remote compute service rather than gRPC.
func (c *Client) doWithRetry(fn func() (*http.Response, error)) (*http.Response, error) {
	backoff := 750 * time.Millisecond
	var lastErr error
	var lastResp *http.Response

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := fn()
		if err == nil && !isTransientStatus(resp.StatusCode) {
			return resp, nil
		}
		if err != nil && !isTransientErr(err) {
			return nil, err
		}
		if resp != nil {
			resp.Body.Close()
		}
		lastErr, lastResp = err, resp
		if attempt == c.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("remote gpu service unavailable after retries: status %d", lastResp.StatusCode)
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
