package server

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"kenbikyo/internal/camera"
	"kenbikyo/internal/config"
	"kenbikyo/internal/export"
)

// ViewerState はビューアセッション全体で共有される明示的な状態オブジェクト
//
// カタログ・キャプチャセッション・プレビューループ・最後のキャプチャは
// サーバー起動時に一度だけ構築し、全リクエストで使い回す。
// リクエストごとに作り直すと列挙やフォールバック試行のコストが
// 操作のたびに再発するため、再構築は明示的なリフレッシュ操作に限る
type ViewerState struct {
	mu sync.Mutex

	transport  camera.Transport
	enumerator *camera.Enumerator
	catalog    camera.Catalog

	session *camera.CaptureSession
	loop    *camera.PreviewLoop

	// selected は現在開いているデバイスの記述子（閉じている間は直近の選択）
	selected camera.DeviceDescriptor

	// lastCapture は高々1枚のキャプチャ保持スロット
	// 新しいキャプチャで上書きされ、明示的な削除操作でクリアされる
	lastCapture *export.Capture
}

// NewViewerState はカタログ列挙済みのViewerStateを構築する
func NewViewerState(ctx context.Context, cfg *config.Config, transport camera.Transport) *ViewerState {
	enumerator := camera.NewEnumerator(transport, cfg.Capture.ProbeIndexLimit, cfg.Capture.BackendOrder)
	session := camera.NewCaptureSession(transport, cfg.SessionOptions())

	return &ViewerState{
		transport:  transport,
		enumerator: enumerator,
		catalog:    enumerator.Enumerate(ctx),
		session:    session,
		loop:       camera.NewPreviewLoop(session, export.NewFrameEncoder(cfg.Export.StreamQuality), cfg.Capture.PreviewFPS),
	}
}

// Catalog は現在のデバイスカタログを返す
func (v *ViewerState) Catalog() camera.Catalog {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.catalog
}

// RefreshCatalog は列挙をやり直してカタログを丸ごと置き換える
func (v *ViewerState) RefreshCatalog(ctx context.Context) camera.Catalog {
	catalog := v.enumerator.Enumerate(ctx)

	v.mu.Lock()
	v.catalog = catalog
	v.mu.Unlock()

	log.Info().Int("devices", len(catalog)).Msg("デバイスカタログを再構築しました")
	return catalog
}

// Selected は直近に選択された記述子を返す
func (v *ViewerState) Selected() camera.DeviceDescriptor {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected
}

// SetSelected は選択中の記述子を記録する
func (v *ViewerState) SetSelected(d camera.DeviceDescriptor) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = d
}

// LastCapture は保持中のキャプチャを返す（未キャプチャならnil）
func (v *ViewerState) LastCapture() *export.Capture {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastCapture
}

// SetLastCapture は保持スロットを新しいキャプチャで上書きする
func (v *ViewerState) SetLastCapture(c *export.Capture) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastCapture = c
}

// ClearLastCapture は保持スロットを空にする
func (v *ViewerState) ClearLastCapture() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastCapture = nil
}
