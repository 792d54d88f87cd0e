//go:build system

package system_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"dealdesk/internal/domain"
)

type userInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type authResponse struct {
	Message string   `json:"message"`
	Token   string   `json:"token"`
	User    userInfo `json:"user"`
}

type reviewResponse struct {
	Status   domain.DealStatus `json:"status"`
	Feedback *string           `json:"feedback,omitempty"`
}

type errorResponse struct {
	Error       string   `json:"error"`
	FailedRules []string `json:"failed_rules,omitempty"`
}

type systemTestConfig struct {
	APIBaseURL       string
	APIHealthPath    string
	APIReadyPath     string
	PreflightTimeout time.Duration
	// RunLiveReview enables the spec that calls the real external
	// compliance service. Off by default so the suite stays
	// deterministic without an LLM API key.
	RunLiveReview bool
}

func loadSystemTestConfig() systemTestConfig {
	return systemTestConfig{
		APIBaseURL:       envOr("SYSTEM_TEST_API_BASE_URL", "http://localhost:8080"),
		APIHealthPath:    envOr("SYSTEM_TEST_API_HEALTH_PATH", "/healthz"),
		APIReadyPath:     envOr("SYSTEM_TEST_API_READY_PATH", "/readyz"),
		PreflightTimeout: envDurationOr("SYSTEM_TEST_PREFLIGHT_TIMEOUT", 30*time.Second),
		RunLiveReview:    os.Getenv("SYSTEM_TEST_LIVE_REVIEW") == "1",
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func waitForHTTPStatus(url string, want int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == want {
				return nil
			}
			lastErr = fmt.Errorf("GET %s: got %d, want %d", url, resp.StatusCode, want)
		} else {
			lastErr = err
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s: %w", url, lastErr)
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *apiClient) do(method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s response: %w (body: %s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) register(username, fullName, password string) (authResponse, int, error) {
	var out authResponse
	status, err := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username":  username,
		"full_name": fullName,
		"password":  password,
	}, &out)
	return out, status, err
}

func (c *apiClient) login(username, password string) (authResponse, int, error) {
	var out authResponse
	status, err := c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	return out, status, err
}

func (c *apiClient) createDeal(payload map[string]any) (domain.Deal, int, error) {
	var out domain.Deal
	status, err := c.do(http.MethodPost, "/api/deals", payload, &out)
	return out, status, err
}

func (c *apiClient) reviewDeal(dealID int64) (reviewResponse, int, error) {
	var out reviewResponse
	status, err := c.do(http.MethodPost, fmt.Sprintf("/api/deals/%d/review", dealID), nil, &out)
	return out, status, err
}

func (c *apiClient) getDeals() ([]domain.Deal, int, error) {
	var out []domain.Deal
	status, err := c.do(http.MethodGet, "/api/deals", nil, &out)
	return out, status, err
}

func (c *apiClient) getStats() (domain.DealStats, int, error) {
	var out domain.DealStats
	status, err := c.do(http.MethodGet, "/api/deals/stats", nil, &out)
	return out, status, err
}

func (c *apiClient) getNotifications() ([]domain.Notification, int, error) {
	var out []domain.Notification
	status, err := c.do(http.MethodGet, "/api/notifications", nil, &out)
	return out, status, err
}

type uploadImageResponse struct {
	ObjectKey string   `json:"object_key"`
	Images    []string `json:"images"`
}

func (c *apiClient) uploadImage(dealID int64, filename string, content []byte) (uploadImageResponse, int, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return uploadImageResponse{}, 0, err
	}
	if _, err := part.Write(content); err != nil {
		return uploadImageResponse{}, 0, err
	}
	if err := writer.Close(); err != nil {
		return uploadImageResponse{}, 0, err
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/deals/%d/images", c.baseURL, dealID), &body)
	if err != nil {
		return uploadImageResponse{}, 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return uploadImageResponse{}, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return uploadImageResponse{}, resp.StatusCode, err
	}
	var out uploadImageResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return uploadImageResponse{}, resp.StatusCode, fmt.Errorf("decode upload response: %w (body: %s)", err, raw)
		}
	}
	return out, resp.StatusCode, nil
}

func (c *apiClient) downloadImage(dealID int64, name string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/deals/%d/images/%s", c.baseURL, dealID, name), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return raw, resp.StatusCode, err
}

func (c *apiClient) deleteDeal(dealID int64) (int, error) {
	return c.do(http.MethodDelete, fmt.Sprintf("/api/deals/%d", dealID), nil, nil)
}
