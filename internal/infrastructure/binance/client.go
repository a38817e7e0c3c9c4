package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ClientConfig holds configuration for the Binance USDT-M futures client
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow time.Duration
	Timeout    time.Duration
}

// Client is a Binance USDT-M futures REST client. Signed endpoints use
// HMAC-SHA256 over the query string, keyed by the API secret.
type Client struct {
	config     ClientConfig
	httpClient *http.Client

	// now is swappable for deterministic request timestamps in tests
	now func() time.Time
}

// NewClient creates a new Binance futures API client
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		if config.Testnet {
			config.BaseURL = "https://testnet.binancefuture.com"
		} else {
			config.BaseURL = "https://fapi.binance.com"
		}
	}
	if config.RecvWindow <= 0 {
		config.RecvWindow = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		now: time.Now,
	}
}

// APIError is an error response from the Binance API
type APIError struct {
	HTTPStatus int
	Code       int    `json:"code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error: status=%d code=%d msg=%q", e.HTTPStatus, e.Code, e.Message)
}

// sign returns the hex HMAC-SHA256 signature of the encoded query
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.config.APISecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// doRequest performs an HTTP request against a public endpoint
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values, out interface{}) error {
	return c.do(ctx, method, endpoint, params, false, out)
}

// doSigned performs an HTTP request against a signed endpoint, adding
// timestamp, recvWindow and signature parameters.
func (c *Client) doSigned(ctx context.Context, method, endpoint string, params url.Values, out interface{}) error {
	return c.do(ctx, method, endpoint, params, true, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, signed bool, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.FormatInt(c.config.RecvWindow.Milliseconds(), 10))
		query := params.Encode()
		params.Set("signature", c.sign(query))
	}

	var body io.Reader
	target := c.config.BaseURL + endpoint
	query := params.Encode()
	if method == http.MethodGet || method == http.MethodDelete {
		if query != "" {
			target += "?" + query
		}
	} else {
		body = strings.NewReader(query)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
