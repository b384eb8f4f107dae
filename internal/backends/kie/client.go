// Package kie adapts the kie.ai jobs API to the backends contract.
package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slye-labs/slye-backend/internal/backends"
	"github.com/slye-labs/slye-backend/pkg/config"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
)

const (
	createTaskPath = "/api/v1/jobs/createTask"
	recordInfoPath = "/api/v1/jobs/recordInfo"

	defaultAspectRatio = "9:16"
	defaultMode        = "normal"
	defaultFailMessage = "Generation failed"
	maxErrorBody       = 512
)

type Client struct {
	apiKey      string
	baseURL     *url.URL
	callbackURL string
	httpClient  *http.Client
	logg        *logger.Logger
}

func NewClient(cfg config.KieConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "kie api key is required")
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "kie base url is invalid")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:      apiKey,
		baseURL:     base,
		callbackURL: strings.TrimSpace(cfg.CallbackURL),
		httpClient:  &http.Client{Timeout: timeout},
		logg:        logg,
	}, nil
}

func (c *Client) Name() backends.Name {
	return backends.Kie
}

type createTaskRequest struct {
	Model       string          `json:"model"`
	Input       createTaskInput `json:"input"`
	CallBackURL string          `json:"callBackUrl,omitempty"`
}

type createTaskInput struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Mode        string `json:"mode"`
}

type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

type recordInfoData struct {
	TaskID     string `json:"taskId"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailCode   string `json:"failCode"`
	FailMsg    string `json:"failMsg"`
}

type resultPayload struct {
	ResultURLs []string `json:"resultUrls"`
}

func (c *Client) CreateTask(ctx context.Context, prompt, model string, opts backends.Options) (backends.CreateTaskResult, error) {
	body := createTaskRequest{
		Model: model,
		Input: createTaskInput{
			Prompt:      prompt,
			AspectRatio: firstNonEmpty(opts.AspectRatio, defaultAspectRatio),
			Mode:        firstNonEmpty(opts.Mode, defaultMode),
		},
		CallBackURL: firstNonEmpty(opts.CallbackURL, c.callbackURL),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return backends.CreateTaskResult{}, c.fail("createTask", 0, err, "")
	}

	data, err := c.do(ctx, "createTask", http.MethodPost, c.endpoint(createTaskPath, nil), payload)
	if err != nil {
		return backends.CreateTaskResult{}, err
	}

	var task createTaskData
	if err := json.Unmarshal(data, &task); err != nil {
		return backends.CreateTaskResult{}, c.fail("createTask", 0, backends.ErrMalformedResponse, "invalid task payload")
	}
	if strings.TrimSpace(task.TaskID) == "" {
		return backends.CreateTaskResult{}, c.fail("createTask", 0, backends.ErrMalformedResponse, "missing taskId")
	}

	if c.logg != nil {
		ctx = c.logg.WithFields(ctx, map[string]any{"backend": string(backends.Kie), "model": model, "task_id": task.TaskID})
		c.logg.Info(ctx, "kie task created")
	}
	return backends.CreateTaskResult{TaskID: task.TaskID}, nil
}

func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (backends.TaskStatus, error) {
	if strings.TrimSpace(taskID) == "" {
		return backends.TaskStatus{}, c.fail("recordInfo", 0, backends.ErrMalformedResponse, "task id is required")
	}

	q := url.Values{}
	q.Set("taskId", taskID)
	data, err := c.do(ctx, "recordInfo", http.MethodGet, c.endpoint(recordInfoPath, q), nil)
	if err != nil {
		return backends.TaskStatus{}, err
	}

	var record recordInfoData
	if err := json.Unmarshal(data, &record); err != nil {
		return backends.TaskStatus{}, c.fail("recordInfo", 0, backends.ErrMalformedResponse, "invalid record payload")
	}
	return parseRecord(record, data)
}

// parseRecord maps kie task states onto the normalized states. Unknown states
// are rejected rather than treated as pending.
func parseRecord(record recordInfoData, raw json.RawMessage) (backends.TaskStatus, error) {
	status := backends.TaskStatus{Raw: raw}
	switch strings.ToLower(strings.TrimSpace(record.State)) {
	case "success":
		status.State = backends.TaskCompleted
		output, err := firstResultURL(record.ResultJSON)
		if err != nil {
			return backends.TaskStatus{}, &backends.Error{Backend: backends.Kie, Op: "recordInfo", Err: backends.ErrMalformedResponse, Message: err.Error()}
		}
		status.OutputURL = output
	case "fail":
		status.State = backends.TaskFailed
		status.Error = firstNonEmpty(strings.TrimSpace(record.FailMsg), defaultFailMessage)
	case "generating":
		status.State = backends.TaskProcessing
	case "waiting", "queueing":
		status.State = backends.TaskPending
	default:
		return backends.TaskStatus{}, &backends.Error{
			Backend: backends.Kie,
			Op:      "recordInfo",
			Err:     backends.ErrMalformedResponse,
			Message: fmt.Sprintf("unexpected task state %q", record.State),
		}
	}
	return status, nil
}

// firstResultURL returns the first result url; an empty resultJson yields "".
func firstResultURL(resultJSON string) (string, error) {
	resultJSON = strings.TrimSpace(resultJSON)
	if resultJSON == "" {
		return "", nil
	}
	var result resultPayload
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return "", fmt.Errorf("invalid resultJson: %w", err)
	}
	if len(result.ResultURLs) == 0 {
		return "", nil
	}
	return strings.TrimSpace(result.ResultURLs[0]), nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, c.fail(op, 0, err, "")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(op, 0, err, "")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(op, resp.StatusCode, err, "read body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, c.fail(op, resp.StatusCode, backends.ErrRateLimited, messageFrom(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.fail(op, resp.StatusCode, nil, messageFrom(respBody))
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, c.fail(op, resp.StatusCode, backends.ErrMalformedResponse, "invalid json: "+truncateBody(respBody))
	}
	if env.Code == nil {
		return nil, c.fail(op, resp.StatusCode, backends.ErrMalformedResponse, "missing code")
	}
	if *env.Code == http.StatusTooManyRequests {
		return nil, c.fail(op, *env.Code, backends.ErrRateLimited, env.Msg)
	}
	if *env.Code != http.StatusOK {
		return nil, c.fail(op, *env.Code, nil, firstNonEmpty(env.Msg, "request failed"))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, c.fail(op, resp.StatusCode, backends.ErrMalformedResponse, "missing data")
	}
	return env.Data, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	ref := &url.URL{Path: path}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	return c.baseURL.ResolveReference(ref).String()
}

func (c *Client) fail(op string, status int, err error, message string) error {
	return &backends.Error{Backend: backends.Kie, Op: op, StatusCode: status, Message: message, Err: err}
}

func messageFrom(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && strings.TrimSpace(env.Msg) != "" {
		return env.Msg
	}
	return truncateBody(body)
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
