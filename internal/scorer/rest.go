// Package scorer talks to the upstream probability scorer: a REST client for
// batch scoring and a WebSocket subscriber for the scored-instance stream.
package scorer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a REST client for the scorer's batch API.
type Client struct {
	base   string
	apiKey string
	rest   *resty.Client
}

// NewClient creates a scorer client. A zero timeout falls back to 5 seconds.
func NewClient(base, apiKey string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Client{base: base, apiKey: apiKey, rest: r}
}

// Instance is one scoring request: raw feature values plus the group flag the
// post-processor needs afterwards.
type Instance struct {
	Features   map[string]float64 `json:"features"`
	Privileged bool               `json:"privileged"`
}

type scoreReq struct {
	Instances []Instance `json:"instances"`
}

type scoreResp struct {
	Code   int       `json:"code"`
	Msg    string    `json:"msg"`
	Scores []float64 `json:"scores"`
}

// ScoreBatch sends a batch of instances and returns their probability scores,
// aligned with the input order.
func (c *Client) ScoreBatch(ctx context.Context, instances []Instance) ([]float64, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	resp := &scoreResp{}
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("api-key", c.apiKey).
		SetBody(scoreReq{Instances: instances}).
		SetResult(resp).
		Post(c.base + "/api/v1/scores")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error: status %d, body: %s", httpResp.StatusCode(), httpResp.String())
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("scorer: %d %s", resp.Code, resp.Msg)
	}
	if len(resp.Scores) != len(instances) {
		return nil, fmt.Errorf("scorer returned %d scores for %d instances", len(resp.Scores), len(instances))
	}
	for i, s := range resp.Scores {
		if s < 0 || s > 1 {
			return nil, fmt.Errorf("score %d out of range: %f", i, s)
		}
	}
	return resp.Scores, nil
}

// Health checks the scorer's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get(c.base + "/api/v1/health")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("scorer unhealthy: status %d", resp.StatusCode())
	}
	return nil
}
