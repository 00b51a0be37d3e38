package httpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Client 基于 hertz client 的 JSON 调用封装
type Client struct {
	cli *client.Client
}

// StatusError 非 2xx 响应
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// New 创建客户端
func New(dialTimeout time.Duration) (*Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	cli, err := client.NewClient(client.WithDialTimeout(dialTimeout))
	if err != nil {
		return nil, fmt.Errorf("create hertz client failed: %w", err)
	}
	return &Client{cli: cli}, nil
}

// PostJSON 发送 JSON 请求并返回原始响应体
func (c *Client) PostJSON(ctx context.Context, url string, body any, timeout time.Duration) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body failed: %w", err)
	}
	return c.do(ctx, consts.MethodPost, url, data, timeout)
}

// Get 发送 GET 请求并返回原始响应体
func (c *Client) Get(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	return c.do(ctx, consts.MethodGet, url, nil, timeout)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, timeout time.Duration) ([]byte, error) {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetMethod(method)
	req.SetRequestURI(url)
	if body != nil {
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}

	// 取 ctx 截止时间与 timeout 中较早者
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	if err := c.cli.DoTimeout(ctx, req, resp, timeout); err != nil {
		return nil, err
	}

	// resp 归还后 Body 不可再用，拷贝一份
	out := append([]byte(nil), resp.Body()...)
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, &StatusError{Code: code, Body: truncate(string(out), 256)}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
