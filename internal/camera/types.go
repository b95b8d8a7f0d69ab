package camera

import (
	"fmt"
	"strings"
)

// Backend はデバイスとの通信に使う下位ドライバ経路を表す
type Backend string

const (
	// BackendAny はドライバの自動選択を表す
	BackendAny Backend = "any"
	// BackendV4L2 はVideo4Linux2経由のアクセスを表す
	BackendV4L2 Backend = "v4l2"
	// BackendV4L は旧Video4Linux経由のアクセスを表す
	BackendV4L Backend = "v4l"
)

// AutoIndex はドライバにデバイス選択を任せるセンチネルインデックス
const AutoIndex = -1

// DefaultBackendOrder はバックエンドの既定の優先順位
// 汎用の自動選択を先頭に、プラットフォーム固有のものを後に置く
var DefaultBackendOrder = []Backend{BackendAny, BackendV4L2, BackendV4L}

// ParseBackend は文字列からBackendを解釈する
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case BackendAny:
		return BackendAny, nil
	case BackendV4L2:
		return BackendV4L2, nil
	case BackendV4L:
		return BackendV4L, nil
	default:
		return "", fmt.Errorf("未知のバックエンド: %q", s)
	}
}

// DeviceDescriptor はデバイスへの1つの候補経路を識別する
// Enumeratorが生成し、CaptureSession.Openが消費する。不変として扱う
type DeviceDescriptor struct {
	ID      string  // カタログ内の一意識別子
	Index   int     // OSから見たデバイスインデックス（AutoIndexで自動選択）
	Backend Backend // 最初に成功したバックエンド
	Label   string  // 選択UI向けの表示名
}

// IsAuto はドライバ任せの自動検出エントリかどうかを返す
func (d DeviceDescriptor) IsAuto() bool {
	return d.Index == AutoIndex
}

// Catalog は検出順に並んだデバイス記述子の列
// 列挙のたびに丸ごと置き換えられ、部分更新はされない
type Catalog []DeviceDescriptor

// FindByID はIDが一致する記述子を返す
func (c Catalog) FindByID(id string) (DeviceDescriptor, bool) {
	for _, d := range c {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceDescriptor{}, false
}

// Resolution はフレームの解像度を表す
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String は "幅x高さ" 形式の表記を返す
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Frame はデバイスから取得した1枚のデコード済み画像
// チャンネル順はデバイスネイティブ（BGR）のままで、表示用の変換は
// 利用側（exportパッケージ）の責務とする
type Frame struct {
	Data     []byte // 行優先で詰められたピクセルデータ
	Width    int
	Height   int
	Channels int
}

// Resolution はフレームの解像度を返す
func (f *Frame) Resolution() Resolution {
	return Resolution{Width: f.Width, Height: f.Height}
}
