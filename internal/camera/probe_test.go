package camera

import (
	"context"
	"testing"
)

func TestProberProbe(t *testing.T) {
	testCases := []struct {
		name    string
		setup   func(*MockTransport)
		index   int
		backend Backend
		want    bool
	}{
		{
			name:    "正常なデバイスはtrue",
			setup:   func(m *MockTransport) { m.AddDevice(0, BackendAny) },
			index:   0,
			backend: BackendAny,
			want:    true,
		},
		{
			name:    "存在しないデバイスはfalse",
			setup:   func(m *MockTransport) {},
			index:   0,
			backend: BackendAny,
			want:    false,
		},
		{
			name:    "openできても読み取れないデバイスはfalse",
			setup:   func(m *MockTransport) { m.AddZombieDevice(0, BackendAny) },
			index:   0,
			backend: BackendAny,
			want:    false,
		},
		{
			name:    "open報告のないデバイスはfalse",
			setup:   func(m *MockTransport) { m.AddDeadDevice(0, BackendAny) },
			index:   0,
			backend: BackendAny,
			want:    false,
		},
		{
			name:    "バックエンドが一致しない場合はfalse",
			setup:   func(m *MockTransport) { m.AddDevice(0, BackendV4L2) },
			index:   0,
			backend: BackendAny,
			want:    false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transport := NewMockTransport()
			tc.setup(transport)

			prober := NewProber(transport)
			got := prober.Probe(context.Background(), tc.index, tc.backend)

			if got != tc.want {
				t.Errorf("Probe(%d, %s) = %v, want %v", tc.index, tc.backend, got, tc.want)
			}

			// 結果にかかわらずハンドルは必ず解放されること
			if n := transport.OpenHandles(); n != 0 {
				t.Errorf("Expected 0 open handles after probe, got %d", n)
			}
		})
	}
}

func TestProberProbeCancelledContext(t *testing.T) {
	transport := NewMockTransport()
	transport.AddDevice(0, BackendAny)

	prober := NewProber(transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if prober.Probe(ctx, 0, BackendAny) {
		t.Error("Probe should return false when context is cancelled")
	}
	if n := transport.TotalOpens(); n != 0 {
		t.Errorf("Expected no open attempts after cancel, got %d", n)
	}
}
