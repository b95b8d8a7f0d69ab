package camera

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// SessionOptions はCaptureSessionの動作設定
type SessionOptions struct {
	// BackendOrder はフォールバック時のバックエンド優先順位
	BackendOrder []Backend

	// CrossIndexFallback を有効にすると、要求インデックスで開けなかった場合に
	// 他の実インデックスも試す。既定では無効で、バックエンドの切り替えと
	// 自動検出インデックスへのフォールバックのみ行う
	CrossIndexFallback bool

	// IndexLimit はCrossIndexFallback時に走査するインデックスの上限
	IndexLimit int

	// DefaultResolution はOpen直後に適用する解像度
	DefaultResolution Resolution

	// BufferSize はドライバのフレームバッファ段数
	// 1で常に最新フレームを取得する（滞留した古いフレームを避ける）
	BufferSize int

	// FPSHint はデバイスへ伝えるフレームレートの上限ヒント
	FPSHint int
}

// DefaultSessionOptions は既定のセッション設定を返す
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		BackendOrder:      DefaultBackendOrder,
		IndexLimit:        4,
		DefaultResolution: Resolution{Width: 640, Height: 480},
		BufferSize:        1,
		FPSHint:           15,
	}
}

// CaptureSession は高々1つのデバイスハンドルを排他所有するキャプチャセッション
//
// 状態はClosedとOpenの2つで、Open/Releaseで遷移する。終端状態はなく、
// 何度でも開き直せる。「同時に開くハンドルは高々1つ」の不変条件は
// 開き直す前に必ず解放する構造で守る。
// HTTPサーバのゴルーチンから並行に呼ばれるため、状態遷移はmutexで直列化する
type CaptureSession struct {
	transport Transport
	opts      SessionOptions

	mu         sync.Mutex
	handle     Handle
	isOpen     bool
	requested  Resolution // 最後に要求された解像度（Open時に再適用する）
	negotiated Resolution // デバイスが実際に適用した解像度
}

// openVariant はopen試行の1候補
type openVariant struct {
	index   int
	backend Backend
}

// NewCaptureSession は閉じた状態の新しいCaptureSessionを作成する
func NewCaptureSession(transport Transport, opts SessionOptions) *CaptureSession {
	if len(opts.BackendOrder) == 0 {
		opts.BackendOrder = DefaultBackendOrder
	}
	if opts.IndexLimit <= 0 {
		opts.IndexLimit = 4
	}
	if opts.DefaultResolution.Width <= 0 || opts.DefaultResolution.Height <= 0 {
		opts.DefaultResolution = Resolution{Width: 640, Height: 480}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1
	}
	if opts.FPSHint <= 0 {
		opts.FPSHint = 15
	}

	return &CaptureSession{
		transport: transport,
		opts:      opts,
		requested: opts.DefaultResolution,
	}
}

// Open は記述子から導出したフォールバック候補を順に試してデバイスを開く
//
// 候補は「要求インデックス×要求バックエンド」「要求インデックス×残りのバックエンド」
// 「自動検出インデックス×全バックエンド」の順で、openが成功しかつテスト読み取りが
// 成功した最初の候補を採用する。openだけ成功してフレームを返さないドライバや、
// バックエンドに敏感なインデックスへの対策としてこの順序を守る。
// 全候補が失敗した場合はClosedのままErrNoDeviceAvailableを返し、
// 途中のハンドルは一切保持しない
func (s *CaptureSession) Open(descriptor DeviceDescriptor) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 二重openの防止: 既に開いている場合は先に解放する
	s.releaseLocked()

	for _, v := range s.buildVariants(descriptor) {
		log.Debug().Int("index", v.index).Str("backend", string(v.backend)).
			Msg("デバイスのopenを試行")

		handle, err := s.transport.Open(v.index, v.backend)
		if err != nil {
			continue
		}

		if !handle.IsOpened() {
			_ = handle.Close()
			continue
		}

		// openの報告を信用せず、実際にフレームが取れることを確認する
		if _, err := handle.Read(); err != nil {
			_ = handle.Close()
			continue
		}

		handle.SetBufferSize(s.opts.BufferSize)
		handle.SetFPS(s.opts.FPSHint)

		s.handle = handle
		s.isOpen = true
		s.negotiated = handle.SetResolution(s.requested.Width, s.requested.Height)

		log.Info().Int("index", v.index).Str("backend", string(v.backend)).
			Str("resolution", s.negotiated.String()).
			Msg("デバイスを開きました")

		return s.negotiated, nil
	}

	log.Warn().Int("index", descriptor.Index).Str("backend", string(descriptor.Backend)).
		Msg("全フォールバック候補でopenに失敗しました")

	return Resolution{}, ErrNoDeviceAvailable
}

// buildVariants は記述子からopen試行の候補リストを構築する
func (s *CaptureSession) buildVariants(descriptor DeviceDescriptor) []openVariant {
	var variants []openVariant
	seen := make(map[openVariant]bool)

	add := func(index int, backend Backend) {
		v := openVariant{index: index, backend: backend}
		if !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	// 要求されたバックエンドを先頭に置いた優先順
	order := make([]Backend, 0, len(s.opts.BackendOrder)+1)
	order = append(order, descriptor.Backend)
	for _, b := range s.opts.BackendOrder {
		if b != descriptor.Backend {
			order = append(order, b)
		}
	}

	// 要求インデックスを全バックエンドで試す
	for _, b := range order {
		add(descriptor.Index, b)
	}

	// 任意で他の実インデックスも試す（既定では無効）
	if s.opts.CrossIndexFallback {
		for index := 0; index < s.opts.IndexLimit; index++ {
			if index == descriptor.Index {
				continue
			}
			for _, b := range order {
				add(index, b)
			}
		}
	}

	// 最後に自動検出インデックスへフォールバックする
	for _, b := range order {
		add(AutoIndex, b)
	}

	return variants
}

// SetResolution は解像度を要求し、デバイスが実際に適用した値を返す
// セッションが閉じている場合はErrNotOpenを返し、何にも触れない
func (s *CaptureSession) SetResolution(width, height int) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		return Resolution{}, fmt.Errorf("解像度を設定できません: %w", ErrNotOpen)
	}

	s.requested = Resolution{Width: width, Height: height}
	s.negotiated = s.handle.SetResolution(width, height)

	if s.negotiated != s.requested {
		log.Info().Str("requested", s.requested.String()).
			Str("actual", s.negotiated.String()).
			Msg("解像度が要求値から丸められました")
	}

	return s.negotiated, nil
}

// Read はブロッキングで1フレーム読み取る
// 読み取り失敗は一時的なものとして扱い、セッションはOpenのまま維持する。
// 呼び出し側は次の周期で再試行できる
func (s *CaptureSession) Read() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		return nil, ErrNotOpen
	}

	frame, err := s.handle.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReadFailed, err)
	}

	return frame, nil
}

// Release はハンドルを解放してClosedに遷移する
// 冪等であり、閉じた状態や開きかけで失敗した後でも安全に呼べる。
// それ自体が失敗を報告することはない
func (s *CaptureSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// releaseLocked はロック保持前提の解放処理
func (s *CaptureSession) releaseLocked() {
	if s.handle != nil {
		if err := s.handle.Close(); err != nil {
			log.Warn().Err(err).Msg("ハンドルの解放でエラーが発生しました")
		}
		s.handle = nil
	}
	s.isOpen = false
}

// IsOpen はセッションが開いているかを返す
func (s *CaptureSession) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

// CurrentResolution はデバイスが実際に適用している解像度を返す
func (s *CaptureSession) CurrentResolution() Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiated
}
