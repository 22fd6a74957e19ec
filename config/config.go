package config

import (
	"os"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
}

type WebConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Secret string `yaml:"secret" json:"secret"`
}

// GatewayConfig addresses the messaging gateway's management API.
type GatewayConfig struct {
	BaseURL    string `yaml:"base_url" json:"base_url"`
	AdminToken string `yaml:"admin_token" json:"admin_token"`
	// Timeout is the per-request HTTP timeout in seconds.
	Timeout int `yaml:"timeout" json:"timeout"`
	// SettleWaitMs is the pause in milliseconds after a preparatory connect
	// before logout or QR fetch. The gateway offers no readiness signal.
	SettleWaitMs int `yaml:"settle_wait_ms" json:"settle_wait_ms"`
}

type PanelConfig struct {
	// RefreshInterval is the background roster refresh period in seconds,
	// 0 disables the job.
	RefreshInterval int `yaml:"refresh_interval" json:"refresh_interval"`
	StatusWorkers   int `yaml:"status_workers" json:"status_workers"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System  SysConfig     `yaml:"system" json:"system"`
	Web     WebConfig     `yaml:"web" json:"web"`
	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`
	Panel   PanelConfig   `yaml:"panel" json:"panel"`
	Logger  LogConfig     `yaml:"logger" json:"logger"`
}

func (c *AppConfig) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.Timeout) * time.Second
}

func (c *AppConfig) SettleWait() time.Duration {
	return time.Duration(c.Gateway.SettleWaitMs) * time.Millisecond
}

func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "wuzpanel",
			Location: "UTC",
			Workdir:  "/var/wuzpanel",
		},
		Web: WebConfig{
			Host:   "0.0.0.0",
			Port:   1816,
			Secret: "9b6de5cc-0001-wuzp-anel-0f568ac9da37",
		},
		Gateway: GatewayConfig{
			BaseURL:      "http://127.0.0.1:8080",
			Timeout:      15,
			SettleWaitMs: 1000,
		},
		Panel: PanelConfig{
			RefreshInterval: 0,
			StatusWorkers:   8,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: false,
			Filename:   "/var/wuzpanel/wuzpanel.log",
		},
	}
}

// LoadConfig reads the YAML config file when present and applies environment
// overrides on top. A missing file is not an error; defaults apply.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	setEnvStr("WUZPANEL_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvStr("WUZPANEL_WEB_HOST", &cfg.Web.Host)
	setEnvInt("WUZPANEL_WEB_PORT", &cfg.Web.Port)
	setEnvStr("WUZPANEL_WEB_SECRET", &cfg.Web.Secret)
	setEnvStr("WUZPANEL_GATEWAY_BASE_URL", &cfg.Gateway.BaseURL)
	setEnvStr("WUZPANEL_GATEWAY_ADMIN_TOKEN", &cfg.Gateway.AdminToken)
	setEnvInt("WUZPANEL_GATEWAY_TIMEOUT", &cfg.Gateway.Timeout)
	setEnvInt("WUZPANEL_GATEWAY_SETTLE_WAIT_MS", &cfg.Gateway.SettleWaitMs)
	setEnvInt("WUZPANEL_PANEL_REFRESH_INTERVAL", &cfg.Panel.RefreshInterval)
	setEnvInt("WUZPANEL_PANEL_STATUS_WORKERS", &cfg.Panel.StatusWorkers)
	setEnvStr("WUZPANEL_LOGGER_MODE", &cfg.Logger.Mode)
	return cfg, nil
}

func setEnvStr(name string, val *string) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = evalue
	}
}

func setEnvInt(name string, val *int) {
	if evalue := os.Getenv(name); evalue != "" {
		if ivalue, err := cast.ToIntE(evalue); err == nil {
			*val = ivalue
		}
	}
}
