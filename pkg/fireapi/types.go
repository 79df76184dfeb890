package fireapi

import "time"

// Config 24Fire API 客户端配置
type Config struct {
	BaseURL  string
	APIKey   string
	ServerID string // internal id of the managed KVM server
	Timeout  time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://api.24fire.de",
		Timeout: 30 * time.Second,
	}
}

// Backup 备份记录
type Backup struct {
	ID          string    `json:"backup_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// apiResponse is the provider's standard envelope.
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// listBackupsResponse wraps the backup listing payload.
type listBackupsResponse struct {
	apiResponse
	Data []Backup `json:"data"`
}
