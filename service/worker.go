package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// jobClient talks to a long-running generation worker: POST the request to
// get a job id, then poll GET /v1/jobs/{id} until the job finishes, fails,
// or the overall deadline passes. Latency is minutes-scale, so no lock may
// be held by callers across these calls.
type jobClient struct {
	endpoint     string
	httpClient   *http.Client
	pollInterval time.Duration
	jobTimeout   time.Duration
}

type jobResult struct {
	ResourceURL  string  `json:"resource_url"`
	LastFrameURL string  `json:"last_frame_url,omitempty"`
	Duration     float64 `json:"duration"`
	Resolution   string  `json:"resolution"`
	SizeBytes    int64   `json:"size_bytes,omitempty"`
}

func newJobClient(endpoint string, pollInterval, jobTimeout time.Duration) *jobClient {
	return &jobClient{
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
	}
}

// run dispatches a job and blocks until it completes.
func (c *jobClient) run(ctx context.Context, path string, payload interface{}) (*jobResult, error) {
	jobID, err := c.dispatch(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	log.Printf("[worker] job submitted: %s, polling for result...", jobID)
	return c.poll(ctx, jobID)
}

func (c *jobClient) dispatch(ctx context.Context, path string, payload interface{}) (string, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("worker status code: %d", resp.StatusCode)
	}

	var respData map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	if id, ok := respData["id"].(string); ok && id != "" {
		return id, nil
	}
	if jobID, ok := respData["job_id"].(string); ok && jobID != "" {
		return jobID, nil
	}
	return "", fmt.Errorf("response missing 'id'")
}

func (c *jobClient) poll(ctx context.Context, jobID string) (*jobResult, error) {
	jobURL := fmt.Sprintf("%s/v1/jobs/%s", c.endpoint, jobID)

	timeout := time.After(c.jobTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return nil, fmt.Errorf("polling timeout after %s", c.jobTimeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("polling canceled: %w", ctx.Err())
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
			if err != nil {
				log.Printf("[worker] create poll request failed: %v", err)
				continue
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				// ctx cancellation surfaces through <-ctx.Done() above.
				log.Printf("[worker] poll network error (retrying): %v", err)
				continue
			}

			var job struct {
				ID     string    `json:"id"`
				Status string    `json:"status"`
				Error  string    `json:"error"`
				Result jobResult `json:"result"`
			}
			bodyBytes, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				log.Printf("[worker] read poll response failed: %v", err)
				continue
			}
			if err := json.Unmarshal(bodyBytes, &job); err != nil {
				bodyStr := string(bodyBytes)
				if len(bodyStr) > 2000 {
					bodyStr = bodyStr[:2000] + "..."
				}
				log.Printf("[worker] parse poll response failed: %v, body: %s", err, bodyStr)
				continue
			}

			switch job.Status {
			case "finished", "completed", "succeeded", "success":
				return &job.Result, nil
			case "failed", "error":
				return nil, fmt.Errorf("worker reported failure: %s", job.Error)
			}
			// any other status: keep polling
		}
	}
}

// fetchBytes downloads a small artifact (e.g. an extracted frame) from the
// worker's result URL.
func fetchBytes(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download status: %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read download failed: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return b, mime, nil
}
