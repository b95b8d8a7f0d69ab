// Package config アプリケーション全体の設定を担う
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"kenbikyo/internal/camera"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig
	Capture CaptureConfig
	Export  ExportConfig
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string // リッスンするホスト
	Port int    // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration // 読み込みタイムアウト
	WriteTimeout time.Duration // 書き込みタイムアウト
}

// CaptureConfig はデバイス取得とキャプチャの設定
type CaptureConfig struct {
	// ProbeIndexLimit は列挙時に走査するデバイスインデックスの上限
	ProbeIndexLimit int

	// BackendOrder はバックエンドの優先順位（汎用の自動選択が先頭）
	BackendOrder []camera.Backend

	// CrossIndexFallback はopen失敗時に他の実インデックスも試すか
	// 既定は無効で、バックエンド切り替えと自動検出への
	// フォールバックのみ行う
	CrossIndexFallback bool

	// PreviewFPS はプレビュー配信の周期
	PreviewFPS int

	// DeviceFPSHint はデバイスへ伝えるフレームレート上限ヒント
	DeviceFPSHint int

	// BufferSize はドライバのフレームバッファ段数
	BufferSize int

	// DefaultWidth / DefaultHeight はセッション開始時の解像度
	DefaultWidth  int
	DefaultHeight int

	// Resolutions は選択UIに提示する解像度プリセット
	Resolutions []ResolutionPreset

	// DeviceDir は抜き差し監視の対象ディレクトリ
	DeviceDir string
}

// ResolutionPreset は選択UI向けの解像度プリセット
type ResolutionPreset struct {
	Label  string `json:"label"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ExportConfig はキャプチャ画像とプレビューのエンコード設定
type ExportConfig struct {
	JPEGQuality   int // キャプチャ保存用の品質
	StreamQuality int // プレビュー配信用の品質
}

// Load は環境変数から設定を読み込む。未設定の項目はデフォルト値を使う
func Load() (*Config, error) {
	backendOrder, err := parseBackendOrder(getEnvOrDefault("CAPTURE_BACKEND_ORDER", "any,v4l2,v4l"))
	if err != nil {
		return nil, fmt.Errorf("バックエンド順の解釈に失敗: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsIntOrDefault("PORT", 8080),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Capture: CaptureConfig{
			ProbeIndexLimit:    getEnvAsIntOrDefault("CAPTURE_PROBE_INDEX_LIMIT", 4),
			BackendOrder:       backendOrder,
			CrossIndexFallback: getEnvAsBoolOrDefault("CAPTURE_CROSS_INDEX_FALLBACK", false),
			PreviewFPS:         getEnvAsIntOrDefault("CAPTURE_PREVIEW_FPS", 30),
			DeviceFPSHint:      getEnvAsIntOrDefault("CAPTURE_DEVICE_FPS_HINT", 15),
			BufferSize:         1,
			DefaultWidth:       640,
			DefaultHeight:      480,
			Resolutions: []ResolutionPreset{
				{Label: "640x480 (VGA)", Width: 640, Height: 480},
				{Label: "1280x720 (HD)", Width: 1280, Height: 720},
				{Label: "1920x1080 (Full HD)", Width: 1920, Height: 1080},
				{Label: "2592x1944 (5MP)", Width: 2592, Height: 1944},
			},
			DeviceDir: getEnvOrDefault("CAPTURE_DEVICE_DIR", "/dev"),
		},
		Export: ExportConfig{
			JPEGQuality:   getEnvAsIntOrDefault("EXPORT_JPEG_QUALITY", 100),
			StreamQuality: getEnvAsIntOrDefault("STREAM_JPEG_QUALITY", 80),
		},
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	if c.Capture.ProbeIndexLimit < 1 {
		return fmt.Errorf("無効なプローブインデックス上限: %d", c.Capture.ProbeIndexLimit)
	}

	if len(c.Capture.BackendOrder) == 0 {
		return fmt.Errorf("バックエンド順が空です")
	}

	if c.Capture.PreviewFPS < 1 || c.Capture.PreviewFPS > 240 {
		return fmt.Errorf("無効なプレビューFPS: %d", c.Capture.PreviewFPS)
	}

	if c.Export.JPEGQuality < 1 || c.Export.JPEGQuality > 100 {
		return fmt.Errorf("無効なJPEG品質: %d", c.Export.JPEGQuality)
	}

	if c.Export.StreamQuality < 1 || c.Export.StreamQuality > 100 {
		return fmt.Errorf("無効なストリーム品質: %d", c.Export.StreamQuality)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SessionOptions はキャプチャ設定をcameraパッケージの形式へ変換する
func (c *Config) SessionOptions() camera.SessionOptions {
	return camera.SessionOptions{
		BackendOrder:       c.Capture.BackendOrder,
		CrossIndexFallback: c.Capture.CrossIndexFallback,
		IndexLimit:         c.Capture.ProbeIndexLimit,
		DefaultResolution: camera.Resolution{
			Width:  c.Capture.DefaultWidth,
			Height: c.Capture.DefaultHeight,
		},
		BufferSize: c.Capture.BufferSize,
		FPSHint:    c.Capture.DeviceFPSHint,
	}
}

// parseBackendOrder はカンマ区切りのバックエンド順を解釈する
func parseBackendOrder(s string) ([]camera.Backend, error) {
	var order []camera.Backend
	for _, part := range strings.Split(s, ",") {
		backend, err := camera.ParseBackend(part)
		if err != nil {
			return nil, err
		}
		order = append(order, backend)
	}
	return order, nil
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault は環境変数を真偽値として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}
