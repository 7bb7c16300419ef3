// Package llm talks to an OpenAI-compatible batch API to summarise pull requests.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"team-activity-pipeline/internal/config"
	"team-activity-pipeline/internal/database"
)

// Request is one pull request to summarise
type Request struct {
	PullRequestID int64
	Prompt        string
}

// Result is the outcome for one request. Err is set when that item failed;
// other items of the same batch are unaffected.
type Result struct {
	PullRequestID int64
	Summary       *database.LLMSummary
	Err           error
}

// Batch statuses reported by the API
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusExpired   = "expired"
	statusCancelled = "cancelled"
)

const completionsEndpoint = "/v1/chat/completions"

// Client submits batches and waits for their results
type Client struct {
	httpClient       *http.Client
	baseURL          string
	apiKey           string
	model            string
	pollInterval     time.Duration
	completionWindow string
	maxTokens        int
}

func NewClient(cfg config.LLMConfig) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: 2 * time.Minute},
		baseURL:          strings.TrimSuffix(cfg.APIURL, "/"),
		apiKey:           cfg.APIKey,
		model:            cfg.Model,
		pollInterval:     cfg.PollInterval,
		completionWindow: cfg.CompletionWindow,
		maxTokens:        cfg.MaxTokens,
	}
}

type batchLine struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     chatRequest `json:"body"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type batch struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OutputFileID string `json:"output_file_id"`
	ErrorFileID  string `json:"error_file_id"`
}

type outputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message chatMessage `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitBatch runs reqs as one batch job and returns one result per request.
// Items that fail are retried once in a smaller follow-up batch. An error is
// returned only when the batch as a whole could not be run.
func (c *Client) SubmitBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	results, err := c.runBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}

	var retry []Request
	byID := make(map[int64]int, len(results))
	for i, r := range results {
		byID[r.PullRequestID] = i
		if r.Err != nil {
			retry = append(retry, reqs[i])
		}
	}
	if len(retry) == 0 {
		return results, nil
	}

	slog.Info("Retrying failed batch items", "count", len(retry))
	retried, err := c.runBatch(ctx, retry)
	if err != nil {
		// keep the first pass; the failed items stay failed
		slog.Warn("Retry batch failed", "error", err)
		return results, nil
	}
	for _, r := range retried {
		if r.Err == nil {
			results[byID[r.PullRequestID]] = r
		}
	}
	return results, nil
}

// runBatch returns results in the order of reqs
func (c *Client) runBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	input, err := c.buildInput(reqs)
	if err != nil {
		return nil, err
	}

	fileID, err := c.uploadFile(ctx, input)
	if err != nil {
		return nil, err
	}

	b, err := c.createBatch(ctx, fileID)
	if err != nil {
		return nil, err
	}
	slog.Info("Batch submitted", "batchId", b.ID, "items", len(reqs))

	b, err = c.waitForBatch(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if b.Status != statusCompleted && b.OutputFileID == "" {
		return nil, fmt.Errorf("batch %s ended with status %s", b.ID, b.Status)
	}

	found := map[string]Result{}
	for _, fileID := range []string{b.OutputFileID, b.ErrorFileID} {
		if fileID == "" {
			continue
		}
		content, err := c.downloadFile(ctx, fileID)
		if err != nil {
			return nil, err
		}
		if err := parseOutput(content, found); err != nil {
			return nil, err
		}
	}

	results := make([]Result, len(reqs))
	for i, req := range reqs {
		r, ok := found[customID(req.PullRequestID)]
		if !ok {
			r = Result{Err: fmt.Errorf("no result returned for item")}
		}
		r.PullRequestID = req.PullRequestID
		results[i] = r
	}
	return results, nil
}

func customID(prID int64) string {
	return "pr-" + strconv.FormatInt(prID, 10)
}

func (c *Client) buildInput(reqs []Request) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, req := range reqs {
		line := batchLine{
			CustomID: customID(req.PullRequestID),
			Method:   http.MethodPost,
			URL:      completionsEndpoint,
			Body: chatRequest{
				Model: c.model,
				Messages: []chatMessage{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: req.Prompt},
				},
				MaxTokens:      c.maxTokens,
				ResponseFormat: map[string]string{"type": "json_object"},
			},
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("error encoding batch line: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func (c *Client) uploadFile(ctx context.Context, content []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("purpose", "batch"); err != nil {
		return "", err
	}
	fw, err := w.CreateFormFile("file", "batch.jsonl")
	if err != nil {
		return "", fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := fw.Write(content); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	var file struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/files", w.FormDataContentType(), &body, &file); err != nil {
		return "", fmt.Errorf("error uploading batch input: %w", err)
	}
	return file.ID, nil
}

func (c *Client) createBatch(ctx context.Context, fileID string) (*batch, error) {
	payload, err := json.Marshal(map[string]string{
		"input_file_id":     fileID,
		"endpoint":          completionsEndpoint,
		"completion_window": c.completionWindow,
	})
	if err != nil {
		return nil, err
	}

	var b batch
	if err := c.do(ctx, http.MethodPost, "/batches", "application/json", bytes.NewReader(payload), &b); err != nil {
		return nil, fmt.Errorf("error creating batch: %w", err)
	}
	return &b, nil
}

func (c *Client) waitForBatch(ctx context.Context, id string) (*batch, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var b batch
		if err := c.do(ctx, http.MethodGet, "/batches/"+id, "", nil, &b); err != nil {
			return nil, fmt.Errorf("error polling batch %s: %w", id, err)
		}
		switch b.Status {
		case statusCompleted, statusFailed, statusExpired, statusCancelled:
			return &b, nil
		}
		slog.Debug("Batch in progress", "batchId", id, "status", b.Status)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) downloadFile(ctx context.Context, id string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+id+"/content", "", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading file %s: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error downloading file %s: status %d", id, resp.StatusCode)
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := c.newRequest(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unable to parse response: %w", err)
	}
	return nil
}

// parseOutput reads a JSONL output or error file into found, keyed by custom id
func parseOutput(content []byte, found map[string]Result) error {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line outputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("unable to parse batch output line: %w", err)
		}
		found[line.CustomID] = lineResult(line)
	}
	return scanner.Err()
}

func lineResult(line outputLine) Result {
	switch {
	case line.Error != nil:
		return Result{Err: fmt.Errorf("%s: %s", line.Error.Code, line.Error.Message)}
	case line.Response == nil:
		return Result{Err: fmt.Errorf("empty response")}
	case line.Response.StatusCode != http.StatusOK:
		return Result{Err: fmt.Errorf("item failed with status %d", line.Response.StatusCode)}
	case len(line.Response.Body.Choices) == 0:
		return Result{Err: fmt.Errorf("response has no choices")}
	}

	summary, err := ParseSummary(line.Response.Body.Choices[0].Message.Content)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Summary: summary}
}

// ParseSummary decodes the model's JSON answer, tolerating a markdown fence
func ParseSummary(content string) (*database.LLMSummary, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var summary database.LLMSummary
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &summary); err != nil {
		return nil, fmt.Errorf("unable to parse model output: %w", err)
	}
	if summary.Summary == nil {
		return nil, fmt.Errorf("model output has no summary")
	}
	return &summary, nil
}
