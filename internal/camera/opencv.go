package camera

import (
	"fmt"

	"gocv.io/x/gocv"
)

// OpenCVTransport はgocv（OpenCV VideoCapture）ベースのTransport実装
type OpenCVTransport struct{}

// NewOpenCVTransport は新しいOpenCVTransportを作成する
func NewOpenCVTransport() Transport {
	return &OpenCVTransport{}
}

// Open は指定のインデックスとバックエンドでVideoCaptureを開く
func (t *OpenCVTransport) Open(index int, backend Backend) (Handle, error) {
	cap, err := gocv.OpenVideoCaptureWithAPI(index, backendToAPI(backend))
	if err != nil {
		return nil, fmt.Errorf("VideoCaptureを開けませんでした (index=%d backend=%s): %w", index, backend, err)
	}

	return &openCVHandle{
		cap: cap,
		mat: gocv.NewMat(),
	}, nil
}

// backendToAPI はBackendをOpenCVのAPI定数に変換する
func backendToAPI(b Backend) gocv.VideoCaptureAPI {
	switch b {
	case BackendV4L2:
		return gocv.VideoCaptureV4L2
	case BackendV4L:
		return gocv.VideoCaptureV4L
	default:
		return gocv.VideoCaptureAny
	}
}

// openCVHandle はVideoCaptureを包むHandle実装
// Matは読み取りバッファとして使い回し、Closeでまとめて解放する
type openCVHandle struct {
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// IsOpened はドライバが開けたと報告しているかを返す
func (h *openCVHandle) IsOpened() bool {
	if h.closed {
		return false
	}
	return h.cap.IsOpened()
}

// Read はブロッキングで1フレーム読み取り、BGRのままコピーして返す
func (h *openCVHandle) Read() (*Frame, error) {
	if h.closed {
		return nil, fmt.Errorf("クローズ済みハンドルからの読み取り")
	}

	if ok := h.cap.Read(&h.mat); !ok || h.mat.Empty() {
		return nil, fmt.Errorf("フレームを取得できませんでした")
	}

	data, err := h.mat.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("フレームデータの取り出しに失敗: %w", err)
	}

	return &Frame{
		Data:     data,
		Width:    h.mat.Cols(),
		Height:   h.mat.Rows(),
		Channels: h.mat.Channels(),
	}, nil
}

// SetResolution は解像度を要求し、デバイスが実際に適用した値を読み返す
func (h *openCVHandle) SetResolution(width, height int) Resolution {
	h.cap.Set(gocv.VideoCaptureFrameWidth, float64(width))
	h.cap.Set(gocv.VideoCaptureFrameHeight, float64(height))

	// デバイスは近いサポートモードに丸めるため、実値を読み返す
	return Resolution{
		Width:  int(h.cap.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(h.cap.Get(gocv.VideoCaptureFrameHeight)),
	}
}

// SetBufferSize はドライバのバッファ段数を設定する
// 1にすると常に最新フレームが取れて、古いフレームの滞留を避けられる
func (h *openCVHandle) SetBufferSize(n int) {
	h.cap.Set(gocv.VideoCaptureBufferSize, float64(n))
}

// SetFPS はフレームレートの上限ヒントを設定する
func (h *openCVHandle) SetFPS(fps int) {
	h.cap.Set(gocv.VideoCaptureFPS, float64(fps))
}

// Close はVideoCaptureと読み取りバッファを解放する
func (h *openCVHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	if err := h.mat.Close(); err != nil {
		// Matの解放失敗よりVideoCaptureの解放を優先する
		_ = h.cap.Close()
		return fmt.Errorf("読み取りバッファの解放に失敗: %w", err)
	}

	if err := h.cap.Close(); err != nil {
		return fmt.Errorf("VideoCaptureの解放に失敗: %w", err)
	}
	return nil
}
