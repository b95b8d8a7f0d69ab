package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"kenbikyo/internal/camera"
	"kenbikyo/internal/export"
)

// deviceInfo は選択UI向けのデバイス情報
type deviceInfo struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Back  string `json:"backend"`
	Label string `json:"label"`
	Auto  bool   `json:"auto"`
}

// sessionInfo はキャプチャセッションの現在状態
type sessionInfo struct {
	Open       bool              `json:"open"`
	Active     bool              `json:"active"`
	Device     string            `json:"device,omitempty"`
	Resolution camera.Resolution `json:"resolution"`
}

// startRequest はセッション開始のリクエストボディ
type startRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// resolutionRequest は解像度変更のリクエストボディ
type resolutionRequest struct {
	Width  int `json:"width" binding:"required"`
	Height int `json:"height" binding:"required"`
}

// errorJSON は人間が読める診断メッセージ付きのエラー応答を返す
func errorJSON(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error":     http.StatusText(status),
		"message":   message,
		"timestamp": time.Now(),
	})
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": s.config.Server.Host,
			"port": s.config.Server.Port,
		},
		"devices":   len(s.viewer.Catalog()),
		"timestamp": time.Now(),
	})
}

// handleDevices はデバイスカタログを返す
// カタログには常に自動検出エントリが含まれるため空にはならない
func (s *Server) handleDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"devices": catalogPayload(s.viewer.Catalog()),
	})
}

// handleDevicesRefresh は列挙をやり直してカタログを置き換える
// プローブはデバイスのタイムアウト分ブロックしうるため、明示的な操作に限る
func (s *Server) handleDevicesRefresh(c *gin.Context) {
	catalog := s.viewer.RefreshCatalog(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"message": "デバイスカタログを再構築しました",
		"devices": catalogPayload(catalog),
	})
}

// catalogPayload はカタログをAPI応答の形式へ変換する
func catalogPayload(catalog camera.Catalog) []deviceInfo {
	return lo.Map(catalog, func(d camera.DeviceDescriptor, _ int) deviceInfo {
		return deviceInfo{
			ID:    d.ID,
			Index: d.Index,
			Back:  string(d.Backend),
			Label: d.Label,
			Auto:  d.IsAuto(),
		}
	})
}

// handleResolutions は選択UI向けの解像度プリセットを返す
func (s *Server) handleResolutions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"resolutions": s.config.Capture.Resolutions,
	})
}

// handleSessionStart はデバイスを開いてプレビュー配信を開始する
func (s *Server) handleSessionStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "device_idを指定してください")
		return
	}

	descriptor, found := s.viewer.Catalog().FindByID(req.DeviceID)
	if !found {
		errorJSON(c, http.StatusNotFound, "指定されたデバイスがカタログにありません。リフレッシュしてください")
		return
	}

	// 動作中のプレビューは止めてから開き直す（Openも暗黙に解放する）
	if err := s.viewer.loop.Stop(c.Request.Context()); err != nil {
		log.Warn().Err(err).Msg("プレビューループの停止でエラーが発生しました")
	}

	resolution, err := s.viewer.session.Open(descriptor)
	if err != nil {
		log.Warn().Err(err).Str("device", descriptor.Label).Msg("セッションの開始に失敗しました")
		errorJSON(c, http.StatusServiceUnavailable,
			"カメラを開けませんでした。接続と権限を確認してから再試行してください")
		return
	}
	s.viewer.SetSelected(descriptor)

	// 解像度が指定されていれば既定値から変更する
	if req.Width > 0 && req.Height > 0 {
		if actual, err := s.viewer.session.SetResolution(req.Width, req.Height); err == nil {
			resolution = actual
		}
	}

	// プレビューはリクエストより長く生きるため、リクエストのコンテキストには紐付けない
	if err := s.viewer.loop.Start(context.Background()); err != nil {
		s.viewer.session.Release()
		errorJSON(c, http.StatusInternalServerError, "プレビューの開始に失敗しました")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "キャプチャセッションを開始しました",
		"device":     descriptor.Label,
		"resolution": resolution,
	})
}

// handleSessionStop はプレビューを止めてデバイスハンドルを解放する
// 解放は冪等なので、既に停止済みでも成功応答を返す
func (s *Server) handleSessionStop(c *gin.Context) {
	if err := s.viewer.loop.Stop(c.Request.Context()); err != nil {
		log.Warn().Err(err).Msg("プレビューループの停止でエラーが発生しました")
	}
	s.viewer.session.Release()

	c.JSON(http.StatusOK, gin.H{
		"message": "キャプチャセッションを停止しました",
	})
}

// handleSessionResolution は解像度を変更し、デバイスが実際に適用した値を返す
// デバイスは近いサポートモードへ丸めるため、呼び出し側は応答の実値を使うこと
func (s *Server) handleSessionResolution(c *gin.Context) {
	var req resolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "widthとheightを指定してください")
		return
	}

	actual, err := s.viewer.session.SetResolution(req.Width, req.Height)
	if err != nil {
		if errors.Is(err, camera.ErrNotOpen) {
			errorJSON(c, http.StatusConflict, "セッションが開かれていません。先に開始してください")
			return
		}
		errorJSON(c, http.StatusInternalServerError, "解像度の変更に失敗しました")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "解像度を変更しました",
		"resolution": actual,
	})
}

// handleSessionStatus はセッションの現在状態を返す
func (s *Server) handleSessionStatus(c *gin.Context) {
	info := sessionInfo{
		Open:       s.viewer.session.IsOpen(),
		Active:     s.viewer.loop.IsActive(),
		Resolution: s.viewer.session.CurrentResolution(),
	}
	if info.Open {
		info.Device = s.viewer.Selected().Label
	}

	c.JSON(http.StatusOK, info)
}

// handleCapture は1フレーム読み取り、表示チャンネル順へ変換して保持スロットに入れる
// プレビュー配信の周期は妨げない。保持は高々1枚で、毎回上書きされる
func (s *Server) handleCapture(c *gin.Context) {
	frame, err := s.viewer.session.Read()
	if err != nil {
		if errors.Is(err, camera.ErrNotOpen) {
			errorJSON(c, http.StatusConflict, "セッションが開かれていません。先に開始してください")
			return
		}
		errorJSON(c, http.StatusServiceUnavailable,
			"フレームを取得できませんでした。再試行してください")
		return
	}

	capture, err := export.NewCapture(frame, s.config.Export.JPEGQuality)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "キャプチャ画像の変換に失敗しました")
		return
	}
	s.viewer.SetLastCapture(capture)

	log.Info().Str("filename", capture.Filename).
		Str("resolution", capture.Resolution.String()).
		Msg("静止画をキャプチャしました")

	c.JSON(http.StatusOK, gin.H{
		"message":     "キャプチャしました",
		"filename":    capture.Filename,
		"captured_at": capture.CapturedAt,
		"resolution":  capture.Resolution,
	})
}

// handleCaptureLast は保持中のキャプチャをダウンロードリンク付きで返す
func (s *Server) handleCaptureLast(c *gin.Context) {
	capture := s.viewer.LastCapture()
	if capture == nil {
		errorJSON(c, http.StatusNotFound, "キャプチャがまだありません")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"filename":    capture.Filename,
		"captured_at": capture.CapturedAt,
		"resolution":  capture.Resolution,
		"data_url":    capture.DataURL(),
	})
}

// handleCaptureClear は保持スロットを空にする
func (s *Server) handleCaptureClear(c *gin.Context) {
	s.viewer.ClearLastCapture()
	c.JSON(http.StatusOK, gin.H{
		"message": "キャプチャをクリアしました",
	})
}

// handleStream はMJPEGストリームを配信する
func (s *Server) handleStream(c *gin.Context) {
	if !s.viewer.loop.IsActive() {
		errorJSON(c, http.StatusConflict, "プレビューが開始されていません")
		return
	}

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	frameCh := s.viewer.loop.Frames()
	clientGone := c.Request.Context().Done()

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			return

		case frame, ok := <-frameCh:
			if !ok {
				return
			}

			if _, err := writer.Write([]byte("--frame\r\n")); err != nil {
				return
			}
			if _, err := writer.Write([]byte("Content-Type: image/jpeg\r\n\r\n")); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

// handleIndex は埋め込みの単一ページUIを返す
func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", getIndexHTML())
}
