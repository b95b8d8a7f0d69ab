package camera

// Transport はキャプチャデバイスを開くための下位層を抽象化する
// 本番実装はOpenCVTransport（opencv.go）、テストはMockTransport（mock.go）を使う
type Transport interface {
	// Open は (インデックス, バックエンド) の組でデバイスハンドルを開く
	// 失敗はerrorで報告し、panicは起こさない。errorを返した場合、
	// リソースは一切保持されない
	Open(index int, backend Backend) (Handle, error)
}

// Handle は開かれたデバイスリソースを表す
// 排他所有のリソースであり、保持者はCaptureSession（またはProbe中の一時保持）に限る。
// 使い終わったら必ずCloseで解放する
type Handle interface {
	// IsOpened はドライバが「開けた」と報告しているかを返す
	// trueでも実際にフレームが取れるとは限らない（ゾンビデバイス）ため、
	// 採用前に必ずReadで検証する
	IsOpened() bool

	// Read はブロッキングで1フレーム読み取る
	// 失敗してもハンドル自体は有効なままで、再試行できる
	Read() (*Frame, error)

	// SetResolution は解像度を要求し、実際に適用された値を返す
	// デバイスは最も近いサポートモードに丸めることが多いので、
	// 呼び出し側は戻り値の実値を使わなければならない
	SetResolution(width, height int) Resolution

	// SetBufferSize はドライバ側のフレームバッファ段数を設定する
	SetBufferSize(n int)

	// SetFPS はフレームレートの上限ヒントを設定する（保証ではない）
	SetFPS(fps int)

	// Close はハンドルを解放する。冪等で、二重に呼んでも安全
	Close() error
}
