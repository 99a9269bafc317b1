package userfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// restClient issues the three listenKey lifecycle calls against the
// venue's REST API. Grounded on the reference codebase's futures REST
// client conventions (constant timeouts, X-MBX-APIKEY header, signed
// query construction left to the caller since listenKey calls are
// key-only, not signed).
type restClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newRESTClient(baseURL, apiKey string) *restClient {
	return &restClient{baseURL: baseURL, apiKey: apiKey, http: &http.Client{Timeout: 10 * time.Second}}
}

func (r *restClient) do(ctx context.Context, method, path string, query url.Values) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("X-MBX-APIKEY", r.apiKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("venue returned status %d", resp.StatusCode)
	}
	return out, nil
}

// createListenKey issues POST /fapi/v1/listenKey.
func (r *restClient) createListenKey(ctx context.Context) (string, error) {
	out, err := r.do(ctx, http.MethodPost, "/fapi/v1/listenKey", nil)
	if err != nil {
		return "", err
	}
	var key string
	if raw, ok := out["listenKey"]; ok {
		_ = json.Unmarshal(raw, &key)
	}
	if key == "" {
		return "", fmt.Errorf("listenKey missing from response")
	}
	return key, nil
}

// keepAliveListenKey issues PUT /fapi/v1/listenKey.
func (r *restClient) keepAliveListenKey(ctx context.Context) error {
	_, err := r.do(ctx, http.MethodPut, "/fapi/v1/listenKey", nil)
	return err
}

// deleteListenKey issues DELETE /fapi/v1/listenKey.
func (r *restClient) deleteListenKey(ctx context.Context) error {
	_, err := r.do(ctx, http.MethodDelete, "/fapi/v1/listenKey", nil)
	return err
}
