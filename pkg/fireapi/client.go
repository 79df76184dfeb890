package fireapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Client 24Fire 面板 HTTP 客户端（备份接口）
type Client struct {
	baseURL    string
	apiKey     string
	serverID   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// FireAPIInterface 定义面板客户端接口
type FireAPIInterface interface {
	// 备份管理
	CreateBackup(ctx context.Context, description string) error
	ListBackups(ctx context.Context) ([]Backup, error)
}

// NewClient 创建新的 24Fire 客户端
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL:  config.BaseURL,
		apiKey:   config.APIKey,
		serverID: config.ServerID,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// 私有方法：创建 HTTP 请求
func (c *Client) createRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	url := fmt.Sprintf("%s%s", c.baseURL, endpoint)

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-FIRE-APIKEY", c.apiKey)
	}
	req.Header.Set("User-Agent", "hostpilot/1.0")

	return req, nil
}

// 私有方法：执行请求。备份接口只有 200 视为成功，其余状态码连同
// 响应体一并返回给调用方记录。
func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fire api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("Fire API Request: %s %s", req.Method, req.URL.String())
	c.logger.Debugf("Fire API Response: %d %s", resp.StatusCode, string(body))

	if resp.StatusCode != http.StatusOK {
		var errResp apiResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("fire api error [%d]: %s", resp.StatusCode, errResp.Message)
		}
		return fmt.Errorf("fire api error [%d]: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CreateBackup requests a new backup of the managed server. The automation
// engine treats anything but HTTP 200 as a failed firing.
func (c *Client) CreateBackup(ctx context.Context, description string) error {
	endpoint := fmt.Sprintf("/kvm/%s/backup/create", c.serverID)
	req, err := c.createRequest(ctx, http.MethodPost, endpoint, map[string]string{
		"description": description,
	})
	if err != nil {
		return err
	}
	if err := c.doRequest(req, nil); err != nil {
		return err
	}
	c.logger.Infof("Requested backup of server %s: %s", c.serverID, description)
	return nil
}

// ListBackups returns the existing backups of the managed server.
func (c *Client) ListBackups(ctx context.Context) ([]Backup, error) {
	endpoint := fmt.Sprintf("/kvm/%s/backup/list", c.serverID)
	req, err := c.createRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out listBackupsResponse
	if err := c.doRequest(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}
