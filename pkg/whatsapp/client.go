package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"crmflow/pkg/utils"
)

// Config WhatsApp Cloud API 参数
type Config struct {
	BaseURL       string
	PhoneNumberID string
	Token         string
	CountryCode   string
	Timeout       time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://graph.facebook.com/v19.0",
		CountryCode: "55",
		Timeout:     15 * time.Second,
	}
}

// Client WhatsApp Cloud API HTTP 客户端
type Client struct {
	baseURL       string
	phoneNumberID string
	token         string
	countryCode   string
	httpClient    *http.Client
	logger        *logrus.Logger
}

// NewClient 创建客户端；HTTP 传输层带 otel 追踪
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		phoneNumberID: config.PhoneNumberID,
		token:         config.Token,
		countryCode:   config.CountryCode,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// SendText sends a plain text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, phone, text string) (string, error) {
	to := c.NormalizePhone(phone)
	if to == "" {
		return "", errors.New("telefone inválido")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("mensagem vazia")
	}
	body := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextBody{Body: text},
	}
	req, err := c.createRequest(ctx, http.MethodPost, fmt.Sprintf("/%s/messages", c.phoneNumberID), body)
	if err != nil {
		return "", err
	}
	var resp SendMessageResponse
	if err := c.doRequest(req, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 {
		return "", nil
	}
	return resp.Messages[0].ID, nil
}

// NormalizePhone keeps digits and prefixes the default country code for
// national numbers (10 or 11 digits).
func (c *Client) NormalizePhone(phone string) string {
	digits := utils.DigitsOnly(phone)
	if digits == "" {
		return ""
	}
	if c.countryCode != "" && (len(digits) == 10 || len(digits) == 11) {
		return c.countryCode + digits
	}
	return digits
}

func (c *Client) createRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debugf("WhatsApp API %s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return &APIError{Status: resp.StatusCode, Code: errResp.Error.Code, Message: errResp.Error.Message}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
