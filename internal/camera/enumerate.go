package camera

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AutoDetectLabel は自動検出エントリの表示名
const AutoDetectLabel = "自動検出"

// Enumerator は候補インデックスとバックエンドの探索空間をプローブして
// 使用可能なデバイスのカタログを構築する
//
// 列挙は1回のopen試行ごとにドライバのタイムアウト分ブロックしうるため、
// UIセッションの開始時に1度だけ実行し、フレームごとには決して実行しない
type Enumerator struct {
	prober       *Prober
	indexLimit   int
	backendOrder []Backend
}

// NewEnumerator は新しいEnumeratorを作成する
// indexLimitは走査するデバイスインデックスの上限（0からindexLimit-1まで）、
// backendOrderはバックエンドの優先順位。空の場合は既定値を使う
func NewEnumerator(transport Transport, indexLimit int, backendOrder []Backend) *Enumerator {
	if indexLimit <= 0 {
		indexLimit = 4
	}
	if len(backendOrder) == 0 {
		backendOrder = DefaultBackendOrder
	}

	return &Enumerator{
		prober:       NewProber(transport),
		indexLimit:   indexLimit,
		backendOrder: backendOrder,
	}
}

// Enumerate は探索空間をプローブしてカタログを構築する
//
// インデックスは昇順、バックエンドは設定された優先順に評価し、
// 最初に成功したバックエンドをそのインデックスの記述子として採用する。
// 先頭には常に自動検出エントリを置くため、プローブが全滅しても
// カタログが空になることはない（下流の選択UIは空リストを受け取らない）
func (e *Enumerator) Enumerate(ctx context.Context) Catalog {
	catalog := Catalog{
		{
			ID:      uuid.New().String(),
			Index:   AutoIndex,
			Backend: BackendAny,
			Label:   AutoDetectLabel,
		},
	}

	for index := 0; index < e.indexLimit; index++ {
		select {
		case <-ctx.Done():
			log.Debug().Msg("列挙がキャンセルされました")
			return catalog
		default:
		}

		for _, backend := range e.backendOrder {
			if !e.prober.Probe(ctx, index, backend) {
				continue
			}

			descriptor := DeviceDescriptor{
				ID:      uuid.New().String(),
				Index:   index,
				Backend: backend,
				Label:   fmt.Sprintf("カメラ %d (%s)", index, backend),
			}
			catalog = append(catalog, descriptor)

			log.Info().Int("index", index).Str("backend", string(backend)).
				Msg("使用可能なデバイスを検出しました")
			break
		}
	}

	return catalog
}
