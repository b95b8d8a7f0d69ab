package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"kenbikyo/internal/camera"
	"kenbikyo/internal/config"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	viewer     *ViewerState
	watcher    *camera.DeviceWatcher
	engine     *gin.Engine
	httpServer *http.Server
}

// New は新しいServerインスタンスを作成する
// transportを注入できるようにしてあるのはテストでMockTransportを使うため
func New(cfg *config.Config, transport camera.Transport) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config: cfg,
		viewer: NewViewerState(context.Background(), cfg, transport),
		engine: engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックとステータス
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/api/status", s.handleStatus)

	// デバイスカタログ
	s.engine.GET("/api/devices", s.handleDevices)
	s.engine.POST("/api/devices/refresh", s.handleDevicesRefresh)
	s.engine.GET("/api/resolutions", s.handleResolutions)

	// キャプチャセッション
	s.engine.POST("/api/session/start", s.handleSessionStart)
	s.engine.POST("/api/session/stop", s.handleSessionStop)
	s.engine.POST("/api/session/resolution", s.handleSessionResolution)
	s.engine.GET("/api/session", s.handleSessionStatus)

	// 静止画キャプチャ
	s.engine.POST("/api/capture", s.handleCapture)
	s.engine.GET("/api/capture/last", s.handleCaptureLast)
	s.engine.DELETE("/api/capture/last", s.handleCaptureClear)

	// プレビュー配信と埋め込みUI
	s.engine.GET("/api/stream", s.handleStream)
	s.engine.GET("/", s.handleIndex)
}

// Start はサーバーを起動し、シグナルかコンテキストの終了まで動き続ける
func (s *Server) Start(ctx context.Context) error {
	// デバイスの抜き差し監視を開始する（失敗しても致命的ではない）
	s.startDeviceWatcher(ctx)

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Info().Str("address", s.config.ServerAddress()).Msg("HTTPサーバーを起動しています")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Info().Msg("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("シグナルを受信しました")
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// startDeviceWatcher は/devの監視を開始し、videoデバイスの
// 抜き差しを検知したらカタログを再列挙する
func (s *Server) startDeviceWatcher(ctx context.Context) {
	watcher, err := camera.NewDeviceWatcher(s.config.Capture.DeviceDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", s.config.Capture.DeviceDir).
			Msg("デバイス監視を開始できません。手動リフレッシュのみ有効です")
		return
	}

	if err := watcher.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("デバイス監視の開始に失敗しました")
		return
	}
	s.watcher = watcher

	go func() {
		for range watcher.Events() {
			s.viewer.RefreshCatalog(ctx)
		}
	}()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Info().Msg("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// プレビューループを止めてからデバイスハンドルを解放する
	if err := s.viewer.loop.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("プレビューループの停止でエラーが発生しました")
	}
	s.viewer.session.Release()

	if s.watcher != nil {
		if err := s.watcher.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("デバイス監視の停止でエラーが発生しました")
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Info().Msg("サーバーが正常にシャットダウンされました")
	return nil
}
