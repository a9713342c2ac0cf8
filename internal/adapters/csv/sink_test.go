package csv

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/pkg/log"
)

func depth32(values ...float32) domain.Image {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return domain.Image{Width: len(values), Height: 1, Encoding: domain.EncodingDepth32F, Step: 4 * len(values), Data: data}
}

func rigTuple(ref int64, depth, rgb domain.Image) *domain.AlignedTuple {
	return domain.NewAlignedTuple([]domain.Message{
		domain.NewMessage(domain.StreamDepth, ref, depth),
		domain.NewMessage(domain.StreamRGB, ref+1, rgb),
		domain.NewMessage(domain.StreamCloud, ref+2, domain.PointCloud{}),
		domain.NewMessage(domain.StreamOdom, ref+3, domain.Odometry{
			Position:    domain.Vector3{X: 1.5, Y: -2},
			Orientation: domain.Quaternion{W: 1},
		}),
		domain.NewMessage(domain.StreamCmdVel, ref+4, domain.Twist{Linear: domain.Vector3{X: 0.25}}),
		domain.NewMessage(domain.StreamVelSmoother, ref+5, domain.Twist{Angular: domain.Vector3{Z: 0.5}}),
	})
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestSink_WritesRows(t *testing.T) {
	dir := t.TempDir()
	stamp := time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)
	cfg := DefaultConfig(dir)
	cfg.Stamp = stamp

	s, err := NewSink(cfg, log.NewNoopLogger())
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}

	rgb := domain.Image{Width: 2, Height: 1, Encoding: domain.EncodingBGR8, Step: 6, Data: []byte{1, 2, 3, 4, 5, 6}}
	if err := s.Accept(context.Background(), rigTuple(1000, depth32(0.5, 2), rgb)); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	depthPath, rgbPath, uavPath := s.Paths()
	if want := filepath.Join(dir, "depth_data_2024_03_05_14:07:09.csv"); depthPath != want {
		t.Errorf("depth path = %s, want %s", depthPath, want)
	}

	if diff := cmp.Diff([]string{"1000,0.5,2"}, readLines(t, depthPath)); diff != "" {
		t.Errorf("depth rows (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1000,1,2,3,4,5,6"}, readLines(t, rgbPath)); diff != "" {
		t.Errorf("rgb rows (-want +got):\n%s", diff)
	}

	uav := readLines(t, uavPath)
	if len(uav) != 2 {
		t.Fatalf("uav lines = %d, want header + 1", len(uav))
	}
	if !strings.HasPrefix(uav[0], "reference,odom_px,") {
		t.Errorf("uav header = %q", uav[0])
	}
	want := "1000,1.5,-2,0,0,0,0,1,0,0,0,0,0,0,0.25,0,0,0,0,0,0,0,0,0,0,0.5"
	if uav[1] != want {
		t.Errorf("uav row = %q, want %q", uav[1], want)
	}
	if s.Rows() != 1 {
		t.Errorf("Rows() = %d, want 1", s.Rows())
	}
}

func TestSink_BadImageSkipsWholeTuple(t *testing.T) {
	s, err := NewSink(DefaultConfig(t.TempDir()), log.NewNoopLogger())
	if err != nil {
		t.Fatal(err)
	}
	rgb := domain.Image{Width: 1, Height: 1, Encoding: domain.EncodingRGB8, Step: 3, Data: []byte{9, 8, 7}}

	bad := depth32(1)
	bad.Data = bad.Data[:2]
	if err := s.Accept(context.Background(), rigTuple(1, bad, rgb)); err == nil {
		t.Fatal("Accept() error = nil, want conversion error")
	}
	if err := s.Accept(context.Background(), rigTuple(2, depth32(1), rgb)); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	_ = s.Close()

	depthPath, rgbPath, uavPath := s.Paths()
	if got := readLines(t, depthPath); len(got) != 1 || !strings.HasPrefix(got[0], "2,") {
		t.Errorf("depth rows = %v, want only tuple 2", got)
	}
	if got := readLines(t, rgbPath); len(got) != 1 || got[0] != "2,9,8,7" {
		t.Errorf("rgb rows = %v, want only tuple 2", got)
	}
	if got := readLines(t, uavPath); len(got) != 2 {
		t.Errorf("uav lines = %d, want header + 1", len(got))
	}
}

func TestSink_FailedWriteRollsBackTuple(t *testing.T) {
	s, err := NewSink(DefaultConfig(t.TempDir()), log.NewNoopLogger())
	if err != nil {
		t.Fatal(err)
	}
	rgb := domain.Image{Width: 1, Height: 1, Encoding: domain.EncodingRGB8, Step: 3, Data: []byte{9, 8, 7}}
	if err := s.Accept(context.Background(), rigTuple(1, depth32(1), rgb)); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	// Depth is written before rgb, so only the rgb write fails.
	if err := s.rgb.f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Accept(context.Background(), rigTuple(2, depth32(2), rgb)); err == nil {
		t.Fatal("Accept() error = nil, want write error")
	}
	if s.Rows() != 1 {
		t.Errorf("Rows() = %d, want 1", s.Rows())
	}
	_ = s.Close()

	depthPath, rgbPath, uavPath := s.Paths()
	if diff := cmp.Diff([]string{"1,1"}, readLines(t, depthPath)); diff != "" {
		t.Errorf("depth rows (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1,9,8,7"}, readLines(t, rgbPath)); diff != "" {
		t.Errorf("rgb rows (-want +got):\n%s", diff)
	}
	if got := readLines(t, uavPath); len(got) != 2 {
		t.Errorf("uav lines = %d, want header + 1", len(got))
	}
}

func TestSink_AcceptAfterClose(t *testing.T) {
	s, err := NewSink(DefaultConfig(t.TempDir()), log.NewNoopLogger())
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	rgb := domain.Image{Width: 1, Height: 1, Encoding: domain.EncodingRGB8, Step: 3, Data: []byte{0, 0, 0}}
	if err := s.Accept(context.Background(), rigTuple(1, depth32(1), rgb)); err != domain.ErrClosed {
		t.Errorf("Accept() error = %v, want ErrClosed", err)
	}
}

func TestNewSink_RequiresDir(t *testing.T) {
	if _, err := NewSink(Config{}, log.NewNoopLogger()); err == nil {
		t.Error("NewSink() error = nil, want error")
	}
}

func TestDepthMeters(t *testing.T) {
	mm := domain.Image{Width: 2, Height: 2, Encoding: domain.EncodingDepth16U, Step: 6, Data: make([]byte, 12)}
	binary.LittleEndian.PutUint16(mm.Data[0:], 1500)
	binary.LittleEndian.PutUint16(mm.Data[2:], 250)
	binary.LittleEndian.PutUint16(mm.Data[6:], 1000)
	binary.LittleEndian.PutUint16(mm.Data[8:], 0)

	be := domain.Image{Width: 1, Height: 1, Encoding: domain.EncodingDepth32F, Step: 4, BigEndian: true, Data: make([]byte, 4)}
	binary.BigEndian.PutUint32(be.Data, math.Float32bits(3.25))

	tests := []struct {
		name    string
		img     domain.Image
		want    []float32
		wantErr bool
	}{
		{"16UC1 millimeters with row padding", mm, []float32{1.5, 0.25, 1, 0}, false},
		{"32FC1 big endian", be, []float32{3.25}, false},
		{"color image", domain.Image{Width: 1, Height: 1, Encoding: domain.EncodingRGB8, Step: 3, Data: make([]byte, 3)}, nil, true},
		{"height times step overflows", domain.Image{Width: 1, Height: 1 << 62, Encoding: domain.EncodingDepth32F, Step: 4, Data: make([]byte, 4)}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DepthMeters(tt.img)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DepthMeters() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DepthMeters() (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRGBBytes(t *testing.T) {
	tests := []struct {
		name    string
		img     domain.Image
		want    []uint8
		wantErr bool
	}{
		{"bgr8 keeps memory order", domain.Image{Width: 1, Height: 2, Encoding: domain.EncodingBGR8, Step: 4, Data: []byte{1, 2, 3, 0, 4, 5, 6, 0}}, []uint8{1, 2, 3, 4, 5, 6}, false},
		{"rgb8", domain.Image{Width: 2, Height: 1, Encoding: domain.EncodingRGB8, Step: 6, Data: []byte{9, 8, 7, 6, 5, 4}}, []uint8{9, 8, 7, 6, 5, 4}, false},
		{"depth image", depth32(1), nil, true},
		{"height times step overflows", domain.Image{Width: 1, Height: 1 << 62, Encoding: domain.EncodingRGB8, Step: 4, Data: make([]byte, 4)}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RGBBytes(tt.img)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RGBBytes() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("RGBBytes() (-want +got):\n%s", diff)
			}
		})
	}
}
