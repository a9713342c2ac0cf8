// Package decode turns JSON feed payloads into typed message payloads.
package decode

import (
	"encoding/json"
	"fmt"

	"github.com/bft-labs/sensorsync/internal/domain"
)

// Decoder implements ports.Decoder. It picks the payload shape by stream;
// streams without a registered kind decode to domain.Raw.
// A Decoder is immutable after construction and safe for concurrent use.
type Decoder struct {
	kinds map[domain.StreamID]domain.PayloadKind
}

// New creates a decoder with an explicit stream to kind mapping.
func New(kinds map[domain.StreamID]domain.PayloadKind) *Decoder {
	m := make(map[domain.StreamID]domain.PayloadKind, len(kinds))
	for k, v := range kinds {
		m[k] = v
	}
	return &Decoder{kinds: m}
}

// NewDefault creates a decoder for the default sensor rig.
func NewDefault() *Decoder {
	return New(DefaultKinds())
}

// DefaultKinds returns the payload kind of every default stream.
func DefaultKinds() map[domain.StreamID]domain.PayloadKind {
	return map[domain.StreamID]domain.PayloadKind{
		domain.StreamDepth:       domain.KindImage,
		domain.StreamRGB:         domain.KindImage,
		domain.StreamCloud:       domain.KindPointCloud,
		domain.StreamOdom:        domain.KindOdometry,
		domain.StreamCmdVel:      domain.KindTwist,
		domain.StreamVelSmoother: domain.KindTwist,
	}
}

// Kind returns the payload kind registered for stream.
func (d *Decoder) Kind(stream domain.StreamID) domain.PayloadKind {
	if k, ok := d.kinds[stream]; ok {
		return k
	}
	return domain.KindRaw
}

// Decode decodes rec according to its stream's kind.
func (d *Decoder) Decode(rec domain.Record) (domain.Payload, error) {
	var (
		p   domain.Payload
		err error
	)
	switch kind := d.Kind(rec.Stream); kind {
	case domain.KindImage:
		p, err = decodeImage(rec.Raw)
	case domain.KindPointCloud:
		p, err = decodePointCloud(rec.Raw)
	case domain.KindOdometry:
		p, err = decodeOdometry(rec.Raw)
	case domain.KindTwist:
		p, err = decodeTwist(rec.Raw)
	case domain.KindRaw:
		p = domain.Raw(append([]byte(nil), rec.Raw...))
	default:
		err = fmt.Errorf("unsupported payload kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s line %d: %w", domain.ErrMalformedPayload, rec.Stream, rec.Line, err)
	}
	return p, nil
}

func unmarshal(raw []byte, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(raw, v)
}

func decodeImage(raw []byte) (domain.Payload, error) {
	var w imageJSON
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	img := domain.Image{
		Width:     w.Width,
		Height:    w.Height,
		Encoding:  w.Encoding,
		Step:      w.Step,
		BigEndian: w.IsBigEndian != 0,
		Data:      w.Data,
	}
	if err := img.Check(); err != nil {
		return nil, err
	}
	return img, nil
}

func decodePointCloud(raw []byte) (domain.Payload, error) {
	var w pointCloudJSON
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	c := domain.PointCloud{
		Width:     w.Width,
		Height:    w.Height,
		PointStep: w.PointStep,
		RowStep:   w.RowStep,
		Data:      w.Data,
	}
	for _, f := range w.Fields {
		c.Fields = append(c.Fields, domain.PointField{
			Name:     f.Name,
			Offset:   f.Offset,
			Datatype: f.Datatype,
			Count:    f.Count,
		})
	}
	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeOdometry(raw []byte) (domain.Payload, error) {
	var w odometryJSON
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return domain.Odometry{
		FrameID:      w.FrameID,
		ChildFrameID: w.ChildFrameID,
		Position:     w.Pose.Position.vector(),
		Orientation:  domain.Quaternion(w.Pose.Orientation),
		Linear:       w.Twist.Linear.vector(),
		Angular:      w.Twist.Angular.vector(),
	}, nil
}

func decodeTwist(raw []byte) (domain.Payload, error) {
	var w twistJSON
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return domain.Twist{
		Linear:  w.Linear.vector(),
		Angular: w.Angular.vector(),
	}, nil
}
