// Package server はHTTP APIと埋め込みUIの配信を管理します。
//
// このパッケージはキャプチャコア（cameraパッケージ）のUI側コラボレータであり、
// デバイス選択・セッション開始/停止・静止画キャプチャの各操作を
// HTTPエンドポイントとして公開します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - デバイスカタログと解像度プリセットの提供
//   - キャプチャセッションの操作（開始/停止/解像度変更/キャプチャ）
//   - MJPEGプレビューストリームの配信
//   - 埋め込み単一ページUIの配信
//
// 仕様:
//   - gin-gonic/ginによるルーティング
//   - ViewerStateが全リクエストで共有されるセッション状態を保持する
//     （カタログ・セッション・プレビューループ・最後のキャプチャ）。
//     起動時に一度だけ構築し、リクエストごとには決して作り直さない
//   - 全エンドポイントが成否と人間が読める診断メッセージを返す
//   - fsnotifyによるデバイス抜き差し検知でカタログを自動更新
package server
