// Package export キャプチャしたフレームの表示用変換とダウンロード生成を担う
//
// コアのcameraパッケージはデバイスネイティブ（BGR）のままフレームを渡すため、
// 表示チャンネル順（RGB）への変換とJPEGエンコード、ブラウザ向けの
// ダウンロードリンク生成はこのパッケージの責務とする
package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"kenbikyo/internal/camera"
)

// ToImage はBGRフレームを表示チャンネル順（RGB）の画像に変換する
func ToImage(frame *camera.Frame) (*image.RGBA, error) {
	if frame == nil {
		return nil, fmt.Errorf("フレームがnilです")
	}
	if frame.Channels != 3 {
		return nil, fmt.Errorf("サポートされていないチャンネル数: %d", frame.Channels)
	}
	if len(frame.Data) < frame.Width*frame.Height*3 {
		return nil, fmt.Errorf("フレームデータが不足しています: %d bytes", len(frame.Data))
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))

	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			src := (y*frame.Width + x) * 3
			dst := img.PixOffset(x, y)

			// BGR → RGB のチャンネル入れ替え
			img.Pix[dst+0] = frame.Data[src+2]
			img.Pix[dst+1] = frame.Data[src+1]
			img.Pix[dst+2] = frame.Data[src+0]
			img.Pix[dst+3] = 0xFF
		}
	}

	return img, nil
}

// EncodeJPEG は画像を指定品質でJPEGにエンコードする
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeFrame はBGRフレームを変換してJPEGにエンコードする
// PreviewLoopのFrameEncoderとしてそのまま使える
func EncodeFrame(frame *camera.Frame, quality int) ([]byte, error) {
	img, err := ToImage(frame)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(img, quality)
}

// NewFrameEncoder は指定品質のFrameEncoderを返す
func NewFrameEncoder(quality int) camera.FrameEncoder {
	return func(frame *camera.Frame) ([]byte, error) {
		return EncodeFrame(frame, quality)
	}
}

// Capture は保持されるキャプチャ1枚を表す
// 新しいキャプチャのたびに丸ごと上書きされ、複数は保持しない
type Capture struct {
	Filename   string            `json:"filename"`
	CapturedAt time.Time         `json:"captured_at"`
	JPEG       []byte            `json:"-"`
	Resolution camera.Resolution `json:"resolution"`
}

// NewCapture はフレームを変換・エンコードしてCaptureを作成する
func NewCapture(frame *camera.Frame, quality int) (*Capture, error) {
	jpegData, err := EncodeFrame(frame, quality)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Capture{
		Filename:   captureFilename(now),
		CapturedAt: now,
		JPEG:       jpegData,
		Resolution: frame.Resolution(),
	}, nil
}

// DataURL はブラウザでそのままダウンロードリンクに使えるdata URLを返す
func (c *Capture) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(c.JPEG)
}

// captureFilename はタイムスタンプ付きのファイル名を生成する
func captureFilename(t time.Time) string {
	return fmt.Sprintf("kenbikyo_%s.jpg", t.Format("20060102_150405"))
}
