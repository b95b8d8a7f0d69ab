// Package camera USBマイクロスコープの取得とキャプチャセッションを担う
//
// # 責務
// - 実際にフレームを返すデバイス経路（インデックス×バックエンド）のプローブ
// - 使用可能なデバイスカタログの構築（自動検出エントリを常に含む）
// - 多段フォールバック付きのキャプチャセッション（open/読み取り/解放）
// - 解像度のネゴシエーション（要求値ではなく実値を返す）
// - プレビュー配信ループとデバイス抜き差しの監視
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - USBカメラ/マイクロスコープから静止画を取得したい
// - 「開けたと報告するがフレームを返さない」ドライバに対処したい
// - デバイスハンドルの確実な解放を保証したい
//
// # 仕様
// - Transport/Handle: gocv (OpenCV VideoCapture) を包む下位抽象
// - Prober: open + テスト読み取りの両方が成功した経路のみを有効と判定
// - Enumerator: 有界の探索空間を昇順にプローブ。カタログは決して空にならない
// - CaptureSession: Closed/Openの2状態。高々1つのハンドルを排他所有し、
//   開き直す前に必ず解放する。全ハードウェア呼び出しはエラーに変換され、
//   このパッケージの境界を生のドライバ例外が越えることはない
// - PreviewLoop: 約30fpsの協調的な配信ループ。読み取り失敗はスキップ
// - DeviceWatcher: fsnotifyで/devを監視して再列挙を促す
//
// # 前提要件
//   - OpenCV 4.x: gocvのビルドに必要
//     https://gocv.io/getting-started/linux/
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
