package camera

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DeviceWatcher はデバイスディレクトリ（通常 /dev）を監視し、
// videoデバイスの抜き差しを検知してカタログの再列挙を促す
//
// 列挙はコストが高いため、短時間に連続したイベントはデバウンスして
// 1つの通知にまとめる
type DeviceWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	events   chan struct{}

	mu     sync.Mutex
	active bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDeviceWatcher は指定ディレクトリを監視するDeviceWatcherを作成する
func NewDeviceWatcher(dir string) (*DeviceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	return &DeviceWatcher{
		watcher:  watcher,
		dir:      dir,
		debounce: 500 * time.Millisecond,
		events:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start は監視を開始する
func (w *DeviceWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active {
		return nil
	}

	w.wg.Add(1)
	go w.run(ctx)

	w.active = true
	return nil
}

// Stop は監視を停止してリソースを解放する
func (w *DeviceWatcher) Stop(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return nil
	}

	close(w.stopCh)
	w.wg.Wait()
	w.active = false

	// 送信側のrunが抜けた後に閉じて、消費側のrangeループを終わらせる
	close(w.events)

	return w.watcher.Close()
}

// Events は再列挙を促す通知チャンネルを返す
func (w *DeviceWatcher) Events() <-chan struct{} {
	return w.events
}

// run はイベント処理ループの本体
func (w *DeviceWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isVideoDeviceEvent(event) {
				continue
			}

			log.Debug().Str("device", event.Name).Str("op", event.Op.String()).
				Msg("videoデバイスの変化を検知")

			// デバウンス: タイマーを仕掛け直して連続イベントをまとめる
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("デバイス監視でエラーが発生しました")

		case <-timerCh:
			timerCh = nil
			select {
			case w.events <- struct{}{}:
			default:
				// 未消費の通知が残っている場合はまとめる
			}
		}
	}
}

// isVideoDeviceEvent はvideoデバイスの生成・削除イベントかを判定する
func isVideoDeviceEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
		return false
	}
	return strings.HasPrefix(filepath.Base(event.Name), "video")
}
