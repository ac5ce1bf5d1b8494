package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bridge-relay/pkg/errno"

	"github.com/go-resty/resty/v2"
)

// apiClient relay-server HTTP API 的薄封装
type apiClient struct {
	http *resty.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// apiError 业务错误 (code != 0)
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// envelope 服务端统一响应 {code, msg, data}
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// do 发请求并把 data 解到 out (out 为 nil 时忽略)
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var result envelope
	req := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		ForceContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("request %s %s: unexpected status %d", method, path, resp.StatusCode())
	}

	if result.Code != errno.OK.Code {
		return &apiError{Code: result.Code, Message: result.Message}
	}
	if out == nil || len(result.Data) == 0 {
		return nil
	}
	return json.Unmarshal(result.Data, out)
}
