package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kenbikyo/internal/camera"
	"kenbikyo/internal/config"
)

// testConfig はテスト用の設定を作成する
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Capture: config.CaptureConfig{
			ProbeIndexLimit: 2,
			BackendOrder:    camera.DefaultBackendOrder,
			PreviewFPS:      30,
			DeviceFPSHint:   15,
			BufferSize:      1,
			DefaultWidth:    640,
			DefaultHeight:   480,
			Resolutions: []config.ResolutionPreset{
				{Label: "640x480 (VGA)", Width: 640, Height: 480},
				{Label: "1920x1080 (Full HD)", Width: 1920, Height: 1080},
			},
			DeviceDir: "/dev",
		},
		Export: config.ExportConfig{
			JPEGQuality:   90,
			StreamQuality: 80,
		},
	}
}

// doRequest はテストサーバーへリクエストを送りレスポンスを返す
func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("リクエストボディの作成に失敗: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	return rec
}

// decodeJSON はレスポンスボディをJSONとして解釈する
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのJSON解釈に失敗: %v (body=%s)", err, rec.Body.String())
	}
	return body
}

// findDeviceID はカタログ応答から条件に合うデバイスIDを探す
func findDeviceID(t *testing.T, srv *Server, auto bool) string {
	t.Helper()

	rec := doRequest(t, srv, http.MethodGet, "/api/devices", nil)
	body := decodeJSON(t, rec)

	devices, ok := body["devices"].([]any)
	if !ok || len(devices) == 0 {
		t.Fatalf("デバイス一覧が空です: %v", body)
	}

	for _, entry := range devices {
		device := entry.(map[string]any)
		if device["auto"].(bool) == auto {
			return device["id"].(string)
		}
	}

	t.Fatalf("条件に合うデバイスが見つかりません (auto=%v)", auto)
	return ""
}

// TestHealthCheck はヘルスチェックエンドポイントをテストする
func TestHealthCheck(t *testing.T) {
	srv := New(testConfig(), camera.NewMockTransport())

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
	}

	body := decodeJSON(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status: got %v, want healthy", body["status"])
	}
}

// TestDevicesNeverEmpty はデバイスが1台もなくてもカタログが空にならないことをテストする
func TestDevicesNeverEmpty(t *testing.T) {
	// 1台も動作するデバイスがないトランスポート
	srv := New(testConfig(), camera.NewMockTransport())

	rec := doRequest(t, srv, http.MethodGet, "/api/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
	}

	body := decodeJSON(t, rec)
	devices := body["devices"].([]any)
	if len(devices) == 0 {
		t.Fatal("カタログが空です。自動検出エントリが常に必要です")
	}

	first := devices[0].(map[string]any)
	if first["auto"] != true {
		t.Errorf("先頭エントリが自動検出ではありません: %v", first)
	}
}

// TestSessionStartSuccess はセッション開始と解像度ネゴシエーションをテストする
func TestSessionStartSuccess(t *testing.T) {
	transport := camera.NewMockTransport()
	transport.AddDevice(0, camera.BackendAny)
	transport.SetMaxResolution(0, camera.BackendAny, camera.Resolution{Width: 1920, Height: 1080})
	srv := New(testConfig(), transport)

	deviceID := findDeviceID(t, srv, false)

	// デバイスの上限を超える解像度を要求する
	rec := doRequest(t, srv, http.MethodPost, "/api/session/start", map[string]any{
		"device_id": deviceID,
		"width":     2592,
		"height":    1944,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("セッション開始に失敗: %d %s", rec.Code, rec.Body.String())
	}

	// 応答には要求値ではなく丸められた実値が入る
	body := decodeJSON(t, rec)
	resolution := body["resolution"].(map[string]any)
	if int(resolution["width"].(float64)) != 1920 || int(resolution["height"].(float64)) != 1080 {
		t.Errorf("実解像度: got %vx%v, want 1920x1080", resolution["width"], resolution["height"])
	}

	// セッション状態を確認する
	rec = doRequest(t, srv, http.MethodGet, "/api/session", nil)
	status := decodeJSON(t, rec)
	if status["open"] != true {
		t.Error("セッションがOpenになっていません")
	}
	if status["active"] != true {
		t.Error("プレビューループがアクティブになっていません")
	}

	// 後始末
	doRequest(t, srv, http.MethodPost, "/api/session/stop", nil)
}

// TestSessionStartNoDevice は全候補が失敗したときの応答とリーク有無をテストする
func TestSessionStartNoDevice(t *testing.T) {
	transport := camera.NewMockTransport()
	srv := New(testConfig(), transport)

	deviceID := findDeviceID(t, srv, true)

	rec := doRequest(t, srv, http.MethodPost, "/api/session/start", map[string]any{
		"device_id": deviceID,
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	body := decodeJSON(t, rec)
	if body["message"] == nil || body["message"] == "" {
		t.Error("診断メッセージがありません")
	}

	// セッションは閉じたままで、ハンドルのリークもない
	rec = doRequest(t, srv, http.MethodGet, "/api/session", nil)
	status := decodeJSON(t, rec)
	if status["open"] != false {
		t.Error("失敗後にセッションがOpenになっています")
	}
	if leaked := transport.OpenHandles(); leaked != 0 {
		t.Errorf("ハンドルがリークしています: %d", leaked)
	}
}

// TestSessionStartUnknownDevice はカタログにないIDを指定した場合をテストする
func TestSessionStartUnknownDevice(t *testing.T) {
	srv := New(testConfig(), camera.NewMockTransport())

	rec := doRequest(t, srv, http.MethodPost, "/api/session/start", map[string]any{
		"device_id": "存在しないID",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// TestSessionStopIdempotent は停止が冪等であることをテストする
func TestSessionStopIdempotent(t *testing.T) {
	srv := New(testConfig(), camera.NewMockTransport())

	for i := 0; i < 2; i++ {
		rec := doRequest(t, srv, http.MethodPost, "/api/session/stop", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%d回目の停止: got %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
}

// TestResolutionWhileClosed は閉じたセッションへの解像度変更をテストする
func TestResolutionWhileClosed(t *testing.T) {
	srv := New(testConfig(), camera.NewMockTransport())

	rec := doRequest(t, srv, http.MethodPost, "/api/session/resolution", map[string]any{
		"width":  1280,
		"height": 720,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusConflict)
	}
}

// TestCaptureWhileClosed は閉じたセッションでのキャプチャをテストする
func TestCaptureWhileClosed(t *testing.T) {
	srv := New(testConfig(), camera.NewMockTransport())

	rec := doRequest(t, srv, http.MethodPost, "/api/capture", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusConflict)
	}
}

// TestCaptureLifecycle はキャプチャの取得・参照・クリアの一連の流れをテストする
func TestCaptureLifecycle(t *testing.T) {
	transport := camera.NewMockTransport()
	transport.AddDevice(0, camera.BackendAny)
	srv := New(testConfig(), transport)

	deviceID := findDeviceID(t, srv, false)
	rec := doRequest(t, srv, http.MethodPost, "/api/session/start", map[string]any{
		"device_id": deviceID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("セッション開始に失敗: %d %s", rec.Code, rec.Body.String())
	}
	defer doRequest(t, srv, http.MethodPost, "/api/session/stop", nil)

	// キャプチャ前は404
	rec = doRequest(t, srv, http.MethodGet, "/api/capture/last", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("キャプチャ前の参照: got %d, want %d", rec.Code, http.StatusNotFound)
	}

	// キャプチャする
	rec = doRequest(t, srv, http.MethodPost, "/api/capture", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("キャプチャに失敗: %d %s", rec.Code, rec.Body.String())
	}

	body := decodeJSON(t, rec)
	filename, _ := body["filename"].(string)
	if !strings.HasPrefix(filename, "kenbikyo_") || !strings.HasSuffix(filename, ".jpg") {
		t.Errorf("ファイル名の形式が不正です: %q", filename)
	}

	// ダウンロードリンク付きで参照できる
	rec = doRequest(t, srv, http.MethodGet, "/api/capture/last", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("キャプチャの参照に失敗: %d", rec.Code)
	}
	last := decodeJSON(t, rec)
	dataURL, _ := last["data_url"].(string)
	if !strings.HasPrefix(dataURL, "data:image/jpeg;base64,") {
		t.Errorf("data URLの形式が不正です: %.40q", dataURL)
	}

	// クリアすると404に戻る
	rec = doRequest(t, srv, http.MethodDelete, "/api/capture/last", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("クリアに失敗: %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/capture/last", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("クリア後の参照: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// TestDevicesRefresh は再列挙でカタログが置き換わることをテストする
func TestDevicesRefresh(t *testing.T) {
	transport := camera.NewMockTransport()
	srv := New(testConfig(), transport)

	// 起動時は自動検出エントリのみ
	rec := doRequest(t, srv, http.MethodGet, "/api/devices", nil)
	before := len(decodeJSON(t, rec)["devices"].([]any))
	if before != 1 {
		t.Fatalf("起動時のカタログ: got %d entries, want 1", before)
	}

	// デバイスを接続してからリフレッシュする
	transport.AddDevice(0, camera.BackendV4L2)
	rec = doRequest(t, srv, http.MethodPost, "/api/devices/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("リフレッシュに失敗: %d", rec.Code)
	}

	after := decodeJSON(t, rec)["devices"].([]any)
	if len(after) != 2 {
		t.Fatalf("リフレッシュ後のカタログ: got %d entries, want 2", len(after))
	}

	added := after[1].(map[string]any)
	if added["backend"] != "v4l2" || int(added["index"].(float64)) != 0 {
		t.Errorf("追加されたデバイスが想定と異なります: %v", added)
	}
}

// TestStreamWithoutPreview はプレビュー未開始でのストリーム要求をテストする
func TestStreamWithoutPreview(t *testing.T) {
	srv := New(testConfig(), camera.NewMockTransport())

	rec := doRequest(t, srv, http.MethodGet, "/api/stream", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("ステータスコード: got %d, want %d", rec.Code, http.StatusConflict)
	}
}

// TestResolutionPresets は解像度プリセットの提供をテストする
func TestResolutionPresets(t *testing.T) {
	srv := New(testConfig(), camera.NewMockTransport())

	rec := doRequest(t, srv, http.MethodGet, "/api/resolutions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", rec.Code, http.StatusOK)
	}

	body := decodeJSON(t, rec)
	presets := body["resolutions"].([]any)
	if len(presets) != 2 {
		t.Fatalf("プリセット数: got %d, want 2", len(presets))
	}

	first := presets[0].(map[string]any)
	if first["label"] != "640x480 (VGA)" {
		t.Errorf("プリセットのラベル: got %v, want 640x480 (VGA)", first["label"])
	}
}
