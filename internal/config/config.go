package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	ModePoll   = "poll"
	ModeStream = "stream"

	SinkGoogle = "google"
	SinkSqlite = "sqlite"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	OpenAlgo OpenAlgoConfig `yaml:"openalgo"`
	Sheet    SheetConfig    `yaml:"sheet"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Alert    AlertConfig    `yaml:"alert"`
	Push     PushConfig     `yaml:"push"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type OpenAlgoConfig struct {
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host"`
	WSURL     string `yaml:"ws_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type SheetConfig struct {
	Backend       string `yaml:"backend"` // google or sqlite
	SpreadsheetID string `yaml:"spreadsheet_id"`
	CredsFile     string `yaml:"creds_file"`
	SqlitePath    string `yaml:"sqlite_path"`
	Name          string `yaml:"name"` // poll-mode worksheet title
}

type IngestConfig struct {
	Mode            string            `yaml:"mode"` // poll or stream
	PollIntervalSec int               `yaml:"poll_interval_sec"`
	StreamSheets    map[string]string `yaml:"stream_sheets"` // exchange -> worksheet title
}

type AlertConfig struct {
	DedupWindowSec int `yaml:"dedup_window_sec"`
	RatePerMinute  int `yaml:"rate_per_minute"`
	RateBurst      int `yaml:"rate_burst"`
	RecentKeep     int `yaml:"recent_keep"`
}

type PushConfig struct {
	Dingtalk DingtalkConfig `yaml:"dingtalk"`
}

type DingtalkConfig struct {
	Webhook   string `yaml:"webhook"`
	Secret    string `yaml:"secret"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// envOverrides mirrors the knobs the original deployment drives through .env.
type envOverrides struct {
	APIKey          string `envconfig:"OPENALGO_API_KEY"`
	Host            string `envconfig:"OPENALGO_HOST"`
	WSURL           string `envconfig:"OPENALGO_WS_URL"`
	SheetName       string `envconfig:"GOOGLE_SHEET_NAME"`
	SpreadsheetID   string `envconfig:"GOOGLE_SHEET_ID"`
	PollInterval    int    `envconfig:"POLL_INTERVAL"`
	Port            int    `envconfig:"PORT"`
	DingtalkWebhook string `envconfig:"DINGTALK_WEBHOOK"`
	DingtalkSecret  string `envconfig:"DINGTALK_SECRET"`
}

// Load reads the yaml config at path (missing file falls back to defaults),
// then applies .env / environment overrides. A missing OpenAlgo API key is
// the only fatal condition here.
func Load(path string) (*Config, error) {
	cfg := Config{
		Server: ServerConfig{Port: 8080},
		OpenAlgo: OpenAlgoConfig{
			Host:      "http://127.0.0.1:5000",
			WSURL:     "ws://127.0.0.1:8765",
			TimeoutMs: 5000,
		},
		Sheet: SheetConfig{
			Backend:    SinkGoogle,
			CredsFile:  "creds.json",
			SqlitePath: "data/dashboard.db",
			Name:       "OpenAlgo Live Feed",
		},
		Ingest: IngestConfig{
			Mode: ModePoll,
			StreamSheets: map[string]string{
				"NSE":   "Equity",
				"NFO":   "Options",
				"BFO":   "Futures",
				"CDS":   "Currency",
				"MCX":   "Commodities",
				"NCDEX": "Commodities",
			},
		},
		Alert: AlertConfig{
			DedupWindowSec: 60,
			RatePerMinute:  30,
			RateBurst:      10,
			RecentKeep:     100,
		},
		Push: PushConfig{
			Dingtalk: DingtalkConfig{TimeoutMs: 5000},
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	applyEnv(&cfg, env)

	if cfg.Ingest.Mode != ModePoll && cfg.Ingest.Mode != ModeStream {
		return nil, fmt.Errorf("invalid ingest mode: %q", cfg.Ingest.Mode)
	}
	if cfg.Ingest.PollIntervalSec <= 0 {
		if cfg.Ingest.Mode == ModeStream {
			cfg.Ingest.PollIntervalSec = 5
		} else {
			cfg.Ingest.PollIntervalSec = 20
		}
	}

	if cfg.OpenAlgo.APIKey == "" {
		return nil, fmt.Errorf("OPENALGO_API_KEY not found in environment or config")
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, env envOverrides) {
	if env.APIKey != "" {
		cfg.OpenAlgo.APIKey = env.APIKey
	}
	if env.Host != "" {
		cfg.OpenAlgo.Host = env.Host
	}
	if env.WSURL != "" {
		cfg.OpenAlgo.WSURL = env.WSURL
	}
	if env.SheetName != "" {
		cfg.Sheet.Name = env.SheetName
	}
	if env.SpreadsheetID != "" {
		cfg.Sheet.SpreadsheetID = env.SpreadsheetID
	}
	if env.PollInterval > 0 {
		cfg.Ingest.PollIntervalSec = env.PollInterval
	}
	if env.Port > 0 && env.Port <= 65535 {
		cfg.Server.Port = env.Port
	}
	if env.DingtalkWebhook != "" {
		cfg.Push.Dingtalk.Webhook = env.DingtalkWebhook
	}
	if env.DingtalkSecret != "" {
		cfg.Push.Dingtalk.Secret = env.DingtalkSecret
	}
}
