package camera

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Prober は (インデックス, バックエンド) の組が実際にフレームを返すかを検証する
// ドライバは「開けた」と報告してもフレームを返さないことがあるため、
// openの成否だけでは判断せず、必ず1回のテスト読み取りまで行う
type Prober struct {
	transport Transport
}

// NewProber は新しいProberを作成する
func NewProber(transport Transport) *Prober {
	return &Prober{transport: transport}
}

// Probe はopenと1回のフレーム読み取りの両方が成功した場合のみtrueを返す
// どのような失敗でもfalseに畳み込み、呼び出し側には決してエラーを伝播しない。
// 途中で失敗した場合もハンドルは必ず解放してから戻る
func (p *Prober) Probe(ctx context.Context, index int, backend Backend) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	handle, err := p.transport.Open(index, backend)
	if err != nil {
		log.Debug().Int("index", index).Str("backend", string(backend)).Err(err).
			Msg("プローブ: openに失敗")
		return false
	}
	defer func() {
		_ = handle.Close()
	}()

	if !handle.IsOpened() {
		log.Debug().Int("index", index).Str("backend", string(backend)).
			Msg("プローブ: open報告なし")
		return false
	}

	if _, err := handle.Read(); err != nil {
		log.Debug().Int("index", index).Str("backend", string(backend)).Err(err).
			Msg("プローブ: テスト読み取りに失敗")
		return false
	}

	return true
}
