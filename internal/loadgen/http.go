package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/resonance/internal/domain/model"
)

// client wraps http.Client with the API routes a load run touches.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends body as JSON when non-nil and decodes a want-status response into out.
func (c *client) do(ctx context.Context, method, path string, body, out any, want int) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%w: %s %s: %d %s", ErrStatus, method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *client) health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

func (c *client) register(ctx context.Context, spec *FingerprintSpec) (model.Fingerprint, error) {
	var fp model.Fingerprint
	err := c.do(ctx, http.MethodPost, "/v1/fingerprints", spec, &fp, http.StatusCreated)
	return fp, err
}

func (c *client) record(ctx context.Context, spec *PulseSpec) (model.Comparison, error) {
	var cmp model.Comparison
	err := c.do(ctx, http.MethodPost, "/v1/pulses", spec, &cmp, http.StatusCreated)
	return cmp, err
}

func (c *client) comparison(ctx context.Context, id string) (model.Comparison, error) {
	var cmp model.Comparison
	err := c.do(ctx, http.MethodGet, "/v1/pulses/"+url.PathEscape(id), nil, &cmp, http.StatusOK)
	return cmp, err
}

func (c *client) convergences(ctx context.Context, minStrength float64, minMatches int) ([]model.Comparison, error) {
	q := url.Values{}
	q.Set("min_strength", strconv.FormatFloat(minStrength, 'f', -1, 64))
	q.Set("min_matches", strconv.Itoa(minMatches))
	var out []model.Comparison
	err := c.do(ctx, http.MethodGet, "/v1/convergences?"+q.Encode(), nil, &out, http.StatusOK)
	return out, err
}
