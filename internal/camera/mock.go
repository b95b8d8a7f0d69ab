package camera

import (
	"fmt"
	"sync"
)

// MockTransport はテスト用のTransport実装
// (インデックス, バックエンド) ごとの応答を設定でき、開閉数を記録する
type MockTransport struct {
	mu      sync.Mutex
	devices map[mockKey]mockDeviceSpec

	openHandles int // 現在開いているハンドル数
	totalOpens  int // これまでにOpenが成功した回数
	lastHandle  *MockHandle
}

type mockKey struct {
	index   int
	backend Backend
}

type mockDeviceSpec struct {
	opened         bool       // IsOpenedが返す値
	readable       bool       // falseの場合、開けるがReadは常に失敗する
	maxResolution  Resolution // ゼロ値なら要求値をそのまま受け入れる
	failReadsAfter int        // 0なら無制限、nなら n 回読んだ後に失敗する
}

// NewMockTransport は新しいMockTransportを作成する
func NewMockTransport() *MockTransport {
	return &MockTransport{
		devices: make(map[mockKey]mockDeviceSpec),
	}
}

// AddDevice は正常に動作するデバイスを追加する
func (t *MockTransport) AddDevice(index int, backend Backend) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices[mockKey{index, backend}] = mockDeviceSpec{opened: true, readable: true}
}

// AddZombieDevice は「開けたと報告するがフレームを返さない」デバイスを追加する
func (t *MockTransport) AddZombieDevice(index int, backend Backend) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices[mockKey{index, backend}] = mockDeviceSpec{opened: true, readable: false}
}

// AddDeadDevice は「Openはエラーにならないが開けていない」デバイスを追加する
func (t *MockTransport) AddDeadDevice(index int, backend Backend) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices[mockKey{index, backend}] = mockDeviceSpec{opened: false, readable: false}
}

// SetMaxResolution はデバイスがサポートする解像度の上限を設定する
// SetResolutionはこの上限に丸めた実値を返すようになる
func (t *MockTransport) SetMaxResolution(index int, backend Backend, max Resolution) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := mockKey{index, backend}
	spec := t.devices[key]
	spec.maxResolution = max
	t.devices[key] = spec
}

// SetFailReadsAfter は指定回数の読み取り後にReadを失敗させる
func (t *MockTransport) SetFailReadsAfter(index int, backend Backend, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := mockKey{index, backend}
	spec := t.devices[key]
	spec.failReadsAfter = n
	t.devices[key] = spec
}

// RemoveDevice はテスト用にデバイスを削除する
func (t *MockTransport) RemoveDevice(index int, backend Backend) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.devices, mockKey{index, backend})
}

// Open はTransportインターフェースの実装
func (t *MockTransport) Open(index int, backend Backend) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	spec, exists := t.devices[mockKey{index, backend}]
	if !exists {
		return nil, fmt.Errorf("デバイスが存在しません: index=%d backend=%s", index, backend)
	}

	t.openHandles++
	t.totalOpens++

	handle := &MockHandle{
		transport: t,
		spec:      spec,
		index:     index,
		backend:   backend,
		width:     640,
		height:    480,
	}
	t.lastHandle = handle
	return handle, nil
}

// LastHandle は最後に開かれたハンドルを返す（テスト検証用）
func (t *MockTransport) LastHandle() *MockHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastHandle
}

// OpenHandles は現在開いたままのハンドル数を返す（リーク検査用）
func (t *MockTransport) OpenHandles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openHandles
}

// TotalOpens はこれまでにOpenが成功した総数を返す
func (t *MockTransport) TotalOpens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalOpens
}

func (t *MockTransport) handleClosed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openHandles--
}

// MockHandle はテスト用のHandle実装
type MockHandle struct {
	transport *MockTransport
	spec      mockDeviceSpec
	index     int
	backend   Backend

	mu         sync.Mutex
	width      int
	height     int
	bufferSize int
	fps        int
	reads      int
	closed     bool
}

// IsOpened は設定されたopened値を返す（クローズ後はfalse）
func (h *MockHandle) IsOpened() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spec.opened && !h.closed
}

// Read は現在の解像度の合成BGRフレームを返す
func (h *MockHandle) Read() (*Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("クローズ済みハンドルからの読み取り")
	}
	if !h.spec.readable {
		return nil, fmt.Errorf("モック: フレームを取得できません")
	}
	if h.spec.failReadsAfter > 0 && h.reads >= h.spec.failReadsAfter {
		return nil, fmt.Errorf("モック: 読み取り上限に達しました")
	}
	h.reads++

	// 決定的なピクセルパターンを生成する（BGR順）
	data := make([]byte, h.width*h.height*3)
	for i := range data {
		data[i] = byte(i % 251)
	}

	return &Frame{
		Data:     data,
		Width:    h.width,
		Height:   h.height,
		Channels: 3,
	}, nil
}

// SetResolution は上限に丸めた実値を記録して返す
func (h *MockHandle) SetResolution(width, height int) Resolution {
	h.mu.Lock()
	defer h.mu.Unlock()

	max := h.spec.maxResolution
	if max.Width > 0 && width > max.Width {
		width = max.Width
	}
	if max.Height > 0 && height > max.Height {
		height = max.Height
	}

	h.width = width
	h.height = height
	return Resolution{Width: width, Height: height}
}

// SetBufferSize は設定値を記録する
func (h *MockHandle) SetBufferSize(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bufferSize = n
}

// SetFPS は設定値を記録する
func (h *MockHandle) SetFPS(fps int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fps = fps
}

// Close はハンドルを解放する。二重クローズは無視される
func (h *MockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.transport.handleClosed()
	return nil
}

// BufferSize は記録されたバッファ段数を返す（テスト検証用）
func (h *MockHandle) BufferSize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bufferSize
}

// FPS は記録されたフレームレートヒントを返す（テスト検証用）
func (h *MockHandle) FPS() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fps
}

// Reads はこれまでの読み取り回数を返す（テスト検証用）
func (h *MockHandle) Reads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reads
}
