package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FrameEncoder はプレビュー配信用にフレームをエンコードする関数
// コアはチャンネル順の変換や画像形式に関知しないため、エンコードは
// 利用側（exportパッケージ）から注入する
type FrameEncoder func(*Frame) ([]byte, error)

// PreviewLoop は開いたセッションを一定周期で読み取り、
// エンコード済みフレームをプレビュー用チャンネルへ送り続ける
//
// 読み取りの失敗は致命的ではなくログに残してスキップする。
// 停止はstopChによる協調的なもので、ループは毎周期フラグを確認して
// 速やかに抜ける（ハードウェア呼び出し自体が固まった場合は割り込めない）
type PreviewLoop struct {
	session *CaptureSession
	encode  FrameEncoder

	interval time.Duration
	frameCh  chan []byte

	mu     sync.Mutex
	active bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPreviewLoop は新しいPreviewLoopを作成する
// fpsはプレビューの配信周期で、ホストCPUとUI更新の負荷を抑えるために使う
func NewPreviewLoop(session *CaptureSession, encode FrameEncoder, fps int) *PreviewLoop {
	if fps <= 0 {
		fps = 30
	}

	return &PreviewLoop{
		session:  session,
		encode:   encode,
		interval: time.Second / time.Duration(fps),
		frameCh:  make(chan []byte, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start はプレビューループを開始する
// セッションが閉じている場合や既に動作中の場合はエラーを返す
func (l *PreviewLoop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		return fmt.Errorf("プレビューループは既に動作中です")
	}
	if !l.session.IsOpen() {
		return fmt.Errorf("プレビューを開始できません: %w", ErrNotOpen)
	}

	l.wg.Add(1)
	go l.run(ctx)

	l.active = true
	return nil
}

// Stop はプレビューループを停止する。既に停止している場合は何もしない
func (l *PreviewLoop) Stop(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return nil
	}

	close(l.stopCh)
	l.wg.Wait()

	// 前のセッションの残フレームを次の配信先に渡さないよう破棄する
drain:
	for {
		select {
		case <-l.frameCh:
		default:
			break drain
		}
	}

	// 再開可能にするため新しいチャンネルを作成する
	l.stopCh = make(chan struct{})
	l.active = false
	return nil
}

// IsActive はループが動作中かを返す
func (l *PreviewLoop) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Frames はプレビューフレームの受信チャンネルを返す
func (l *PreviewLoop) Frames() <-chan []byte {
	return l.frameCh
}

// run は配信ループの本体
func (l *PreviewLoop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	stopCh := l.stopCh

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := l.session.Read()
			if err != nil {
				if errors.Is(err, ErrNotOpen) {
					// セッションが外部で閉じられた場合は配信を終える
					log.Debug().Msg("セッションが閉じられたためプレビューを終了します")
					return
				}
				// 1回の読み取り失敗は致命的ではない。次の周期で再試行する
				log.Debug().Err(err).Msg("プレビューフレームの読み取りをスキップ")
				continue
			}

			encoded, err := l.encode(frame)
			if err != nil {
				log.Debug().Err(err).Msg("プレビューフレームのエンコードに失敗")
				continue
			}

			l.forward(encoded, stopCh)
		}
	}
}

// forward はフレームを配信チャンネルへ送る
// チャンネルがフルの場合は最も古いフレームを破棄して最新を優先する
func (l *PreviewLoop) forward(frame []byte, stopCh <-chan struct{}) {
	select {
	case l.frameCh <- frame:
	case <-stopCh:
	default:
		select {
		case <-l.frameCh:
		default:
		}
		select {
		case l.frameCh <- frame:
		case <-stopCh:
		}
	}
}
