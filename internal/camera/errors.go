package camera

import "errors"

// キャプチャコアのエラー種別
// ハードウェア呼び出しで起きた失敗はすべて呼び出し箇所で捕捉し、
// いずれかの種別に変換して返す。境界の外へ生のドライバエラーを出さない
var (
	// ErrNoDeviceAvailable は全フォールバック候補を試しても開けなかったことを表す
	ErrNoDeviceAvailable = errors.New("利用可能なカメラデバイスが見つかりません")

	// ErrNotOpen はセッションが閉じた状態での操作を表す
	ErrNotOpen = errors.New("キャプチャセッションが開かれていません")

	// ErrReadFailed はフレーム読み取りの一時的な失敗を表す
	// セッションは開いたままなので、次の周期で再試行できる
	ErrReadFailed = errors.New("デバイスからのフレーム読み取りに失敗しました")
)
