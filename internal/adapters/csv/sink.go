// Package csv persists aligned tuples as rows of CSV files.
//
// Three files are written into the output directory, all named after the time
// the sink was created:
//
//	depth_data_<stamp>.csv  reference, then every depth pixel in meters
//	rgb_data_<stamp>.csv    reference, then the three channel bytes of every pixel
//	uav_data_<stamp>.csv    reference, odometry pose and twist, both velocity commands
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
)

// StampLayout formats the creation time embedded in file names.
const StampLayout = "2006_01_02_15:04:05"

// Config names the output directory and which streams feed which columns.
type Config struct {
	Dir string

	// Stamp is the time used in file names. Zero means now.
	Stamp time.Time

	Depth       domain.StreamID
	RGB         domain.StreamID
	Odom        domain.StreamID
	CmdVel      domain.StreamID
	VelSmoother domain.StreamID
}

// DefaultConfig writes the default sensor rig into dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		Depth:       domain.StreamDepth,
		RGB:         domain.StreamRGB,
		Odom:        domain.StreamOdom,
		CmdVel:      domain.StreamCmdVel,
		VelSmoother: domain.StreamVelSmoother,
	}
}

var uavHeader = []string{
	"reference",
	"odom_px", "odom_py", "odom_pz",
	"odom_qx", "odom_qy", "odom_qz", "odom_qw",
	"odom_vx", "odom_vy", "odom_vz",
	"odom_wx", "odom_wy", "odom_wz",
	"cmd_vx", "cmd_vy", "cmd_vz", "cmd_wx", "cmd_wy", "cmd_wz",
	"smooth_vx", "smooth_vy", "smooth_vz", "smooth_wx", "smooth_wy", "smooth_wz",
}

// file renders each row in memory and writes it with a single call, keeping
// the committed size so a row can be taken back.
type file struct {
	f    *os.File
	size int64
	buf  bytes.Buffer
	w    *csv.Writer
}

func createFile(path string) (*file, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	fl := &file{f: f}
	fl.w = csv.NewWriter(&fl.buf)
	return fl, nil
}

func (f *file) write(row []string) error {
	f.buf.Reset()
	if err := f.w.Write(row); err != nil {
		return err
	}
	f.w.Flush()
	if err := f.w.Error(); err != nil {
		return err
	}
	n, err := f.f.Write(f.buf.Bytes())
	f.size += int64(n)
	return err
}

// truncate drops everything written after offset.
func (f *file) truncate(offset int64) error {
	if err := f.f.Truncate(offset); err != nil {
		return err
	}
	if _, err := f.f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	f.size = offset
	return nil
}

func (f *file) close() error {
	return f.f.Close()
}

// Sink implements ports.Sink by appending one row per tuple to each file.
type Sink struct {
	cfg    Config
	logger ports.Logger

	mu     sync.Mutex
	depth  *file
	rgb    *file
	uav    *file
	rows   int
	closed bool
}

// NewSink creates the output directory and the three CSV files.
func NewSink(cfg Config, logger ports.Logger) (*Sink, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: csv output directory is required", domain.ErrInvalidConfig)
	}
	if cfg.Stamp.IsZero() {
		cfg.Stamp = time.Now()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	s := &Sink{cfg: cfg, logger: logger}
	stamp := cfg.Stamp.Format(StampLayout)

	var err error
	if s.depth, err = createFile(filepath.Join(cfg.Dir, "depth_data_"+stamp+".csv")); err != nil {
		return nil, err
	}
	if s.rgb, err = createFile(filepath.Join(cfg.Dir, "rgb_data_"+stamp+".csv")); err != nil {
		_ = s.depth.close()
		return nil, err
	}
	if s.uav, err = createFile(filepath.Join(cfg.Dir, "uav_data_"+stamp+".csv")); err != nil {
		_ = s.depth.close()
		_ = s.rgb.close()
		return nil, err
	}
	if err := s.uav.write(uavHeader); err != nil {
		_ = s.Close()
		return nil, err
	}

	logger.Info("csv sink ready",
		ports.String("dir", cfg.Dir),
		ports.String("stamp", stamp),
	)
	return s, nil
}

// Paths returns the depth, rgb and uav file paths.
func (s *Sink) Paths() (depth, rgb, uav string) {
	return s.depth.f.Name(), s.rgb.f.Name(), s.uav.f.Name()
}

// Rows returns the number of tuples written.
func (s *Sink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Accept converts every member first and writes nothing when any image
// cannot be converted. When a write fails the rows already written for the
// tuple are truncated away, so the files stay row-aligned.
func (s *Sink) Accept(ctx context.Context, tuple *domain.AlignedTuple) error {
	ref := strconv.FormatInt(tuple.Reference, 10)

	var depthRow, rgbRow []string
	if m, ok := tuple.Get(s.cfg.Depth); ok {
		img, ok := m.Payload.(domain.Image)
		if !ok {
			return fmt.Errorf("depth member has %T payload", m.Payload)
		}
		values, err := DepthMeters(img)
		if err != nil {
			return fmt.Errorf("convert depth: %w", err)
		}
		depthRow = make([]string, 0, len(values)+1)
		depthRow = append(depthRow, ref)
		for _, v := range values {
			depthRow = append(depthRow, strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
	}
	if m, ok := tuple.Get(s.cfg.RGB); ok {
		img, ok := m.Payload.(domain.Image)
		if !ok {
			return fmt.Errorf("rgb member has %T payload", m.Payload)
		}
		values, err := RGBBytes(img)
		if err != nil {
			return fmt.Errorf("convert rgb: %w", err)
		}
		rgbRow = make([]string, 0, len(values)+1)
		rgbRow = append(rgbRow, ref)
		for _, v := range values {
			rgbRow = append(rgbRow, strconv.Itoa(int(v)))
		}
	}
	uavRow := s.uavRow(ref, tuple)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrClosed
	}

	rows := []struct {
		name string
		f    *file
		row  []string
	}{
		{"depth", s.depth, depthRow},
		{"rgb", s.rgb, rgbRow},
		{"uav", s.uav, uavRow},
	}
	marks := make([]int64, len(rows))
	for i, r := range rows {
		marks[i] = r.f.size
		if r.row == nil {
			continue
		}
		if err := r.f.write(r.row); err != nil {
			err = fmt.Errorf("write %s row: %w", r.name, err)
			for j := i; j >= 0; j-- {
				if rows[j].f.size == marks[j] {
					continue
				}
				if terr := rows[j].f.truncate(marks[j]); terr != nil {
					err = errors.Join(err, fmt.Errorf("roll back %s row: %w", rows[j].name, terr))
				}
			}
			return err
		}
	}
	s.rows++
	return nil
}

func (s *Sink) uavRow(ref string, tuple *domain.AlignedTuple) []string {
	row := make([]string, 1, len(uavHeader))
	row[0] = ref

	var odom domain.Odometry
	if m, ok := tuple.Get(s.cfg.Odom); ok {
		odom, _ = m.Payload.(domain.Odometry)
	}
	row = appendFloats(row,
		odom.Position.X, odom.Position.Y, odom.Position.Z,
		odom.Orientation.X, odom.Orientation.Y, odom.Orientation.Z, odom.Orientation.W,
		odom.Linear.X, odom.Linear.Y, odom.Linear.Z,
		odom.Angular.X, odom.Angular.Y, odom.Angular.Z,
	)

	for _, id := range []domain.StreamID{s.cfg.CmdVel, s.cfg.VelSmoother} {
		var tw domain.Twist
		if m, ok := tuple.Get(id); ok {
			tw, _ = m.Payload.(domain.Twist)
		}
		row = appendFloats(row,
			tw.Linear.X, tw.Linear.Y, tw.Linear.Z,
			tw.Angular.X, tw.Angular.Y, tw.Angular.Z,
		)
	}
	return row
}

func appendFloats(row []string, vs ...float64) []string {
	for _, v := range vs {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return row
}

// Close flushes and closes all files.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.depth.close(), s.rgb.close(), s.uav.close())
}
