package config

import (
	"testing"
	"time"

	"kenbikyo/internal/camera"
)

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg == nil {
		t.Fatal("設定がnilです")
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		t.Errorf("無効なポート番号: %d", cfg.Server.Port)
	}
	// WriteTimeout はストリーミング用に 0（無効）が既定
	if cfg.Server.WriteTimeout != 0 {
		t.Error("書き込みタイムアウトはストリーミング用に無効であるべきです")
	}

	// キャプチャ設定の検証
	if cfg.Capture.ProbeIndexLimit <= 0 {
		t.Error("プローブインデックス上限が設定されていません")
	}
	if len(cfg.Capture.BackendOrder) == 0 {
		t.Error("バックエンド順が設定されていません")
	}
	if cfg.Capture.BackendOrder[0] != camera.BackendAny {
		t.Error("バックエンド順は自動選択が先頭であるべきです")
	}
	if cfg.Capture.CrossIndexFallback {
		t.Error("クロスインデックスフォールバックは既定で無効であるべきです")
	}
	if cfg.Capture.BufferSize != 1 {
		t.Errorf("バッファ段数は1であるべきです: %d", cfg.Capture.BufferSize)
	}
	if cfg.Capture.DeviceFPSHint != 15 {
		t.Errorf("デバイスFPSヒントは15であるべきです: %d", cfg.Capture.DeviceFPSHint)
	}
	if len(cfg.Capture.Resolutions) == 0 {
		t.Error("解像度プリセットが設定されていません")
	}

	// エクスポート設定の検証
	if cfg.Export.JPEGQuality <= 0 || cfg.Export.JPEGQuality > 100 {
		t.Errorf("無効なJPEG品質: %d", cfg.Export.JPEGQuality)
	}
}

// TestConfigEnvOverride は環境変数による上書きをテストする
func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CAPTURE_PROBE_INDEX_LIMIT", "8")
	t.Setenv("CAPTURE_BACKEND_ORDER", "v4l2,any")
	t.Setenv("CAPTURE_CROSS_INDEX_FALLBACK", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Capture.ProbeIndexLimit != 8 {
		t.Errorf("Expected probe index limit 8, got %d", cfg.Capture.ProbeIndexLimit)
	}
	if len(cfg.Capture.BackendOrder) != 2 || cfg.Capture.BackendOrder[0] != camera.BackendV4L2 {
		t.Errorf("Unexpected backend order: %v", cfg.Capture.BackendOrder)
	}
	if !cfg.Capture.CrossIndexFallback {
		t.Error("Expected cross index fallback enabled")
	}
}

// TestConfigInvalidBackendOrder は不正なバックエンド順の扱いをテストする
func TestConfigInvalidBackendOrder(t *testing.T) {
	t.Setenv("CAPTURE_BACKEND_ORDER", "any,dshow")

	if _, err := Load(); err == nil {
		t.Error("不正なバックエンド順はエラーになるべきです")
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{
				Host:        "127.0.0.1",
				Port:        8080,
				ReadTimeout: 10 * time.Second,
			},
			Capture: CaptureConfig{
				ProbeIndexLimit: 4,
				BackendOrder:    camera.DefaultBackendOrder,
				PreviewFPS:      30,
				DeviceFPSHint:   15,
				BufferSize:      1,
				DefaultWidth:    640,
				DefaultHeight:   480,
			},
			Export: ExportConfig{JPEGQuality: 100, StreamQuality: 80},
		}
	}

	testCases := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{name: "正常な設定", mutate: func(*Config) {}, expectErr: false},
		{name: "ポート番号が小さすぎる", mutate: func(c *Config) { c.Server.Port = 0 }, expectErr: true},
		{name: "ポート番号が大きすぎる", mutate: func(c *Config) { c.Server.Port = 70000 }, expectErr: true},
		{name: "プローブ上限が不正", mutate: func(c *Config) { c.Capture.ProbeIndexLimit = 0 }, expectErr: true},
		{name: "バックエンド順が空", mutate: func(c *Config) { c.Capture.BackendOrder = nil }, expectErr: true},
		{name: "プレビューFPSが不正", mutate: func(c *Config) { c.Capture.PreviewFPS = 0 }, expectErr: true},
		{name: "JPEG品質が不正", mutate: func(c *Config) { c.Export.JPEGQuality = 101 }, expectErr: true},
		{name: "ストリーム品質が不正", mutate: func(c *Config) { c.Export.StreamQuality = 0 }, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("検証エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しない検証エラー: %v", err)
			}
		})
	}
}

// TestConfigServerAddress はリッスンアドレスの生成をテストする
func TestConfigServerAddress(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "127.0.0.1", Port: 8080}}
	if addr := cfg.ServerAddress(); addr != "127.0.0.1:8080" {
		t.Errorf("Expected 127.0.0.1:8080, got %s", addr)
	}
}

// TestConfigSessionOptions はcamera向け設定変換をテストする
func TestConfigSessionOptions(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	opts := cfg.SessionOptions()
	if opts.BufferSize != 1 {
		t.Errorf("Expected buffer size 1, got %d", opts.BufferSize)
	}
	if opts.FPSHint != 15 {
		t.Errorf("Expected FPS hint 15, got %d", opts.FPSHint)
	}
	if opts.DefaultResolution.Width != 640 || opts.DefaultResolution.Height != 480 {
		t.Errorf("Unexpected default resolution: %s", opts.DefaultResolution)
	}
}
