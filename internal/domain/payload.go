package domain

import "fmt"

// PayloadKind names the concrete shape of a Payload.
type PayloadKind string

const (
	KindImage      PayloadKind = "image"
	KindPointCloud PayloadKind = "pointcloud"
	KindOdometry   PayloadKind = "odometry"
	KindTwist      PayloadKind = "twist"
	KindRaw        PayloadKind = "raw"
)

// Payload is the opaque, stream-specific content of a Message.
// The synchronizer never looks inside it; sinks type-switch on the concrete type.
type Payload interface {
	Kind() PayloadKind
}

// Image encodings understood by the CSV sink.
const (
	EncodingDepth32F = "32FC1"
	EncodingDepth16U = "16UC1"
	EncodingRGB8     = "rgb8"
	EncodingBGR8     = "bgr8"
)

// Image is a row-major image buffer.
type Image struct {
	Width    int
	Height   int
	Encoding string
	// Step is the row length in bytes
	Step int
	// BigEndian is true when multi-byte pixels are stored big-endian
	BigEndian bool
	Data      []byte
}

func (Image) Kind() PayloadKind { return KindImage }

// PixelSize returns the number of bytes per pixel for the image encoding,
// or 0 when the encoding is not known.
func (img Image) PixelSize() int {
	switch img.Encoding {
	case EncodingDepth32F:
		return 4
	case EncodingDepth16U:
		return 2
	case EncodingRGB8, EncodingBGR8:
		return 3
	}
	return 0
}

// Check reports whether the geometry of img is consistent with its buffer.
// Bounds are compared by division so that huge dimensions cannot overflow.
func (img Image) Check() error {
	px := img.PixelSize()
	if px == 0 {
		return fmt.Errorf("unsupported encoding %q", img.Encoding)
	}
	if img.Width <= 0 || img.Height <= 0 || img.Step <= 0 {
		return fmt.Errorf("image size %dx%d step %d", img.Width, img.Height, img.Step)
	}
	if img.Width > img.Step/px {
		return fmt.Errorf("step %d shorter than %d pixels of %d bytes", img.Step, img.Width, px)
	}
	if img.Height > len(img.Data)/img.Step {
		return fmt.Errorf("image data %d bytes shorter than %d rows of %d bytes", len(img.Data), img.Height, img.Step)
	}
	return nil
}

// PointField describes one named field inside a point record.
type PointField struct {
	Name   string
	Offset int
	// Datatype follows the PointField datatype codes (7 = float32).
	Datatype int
	Count    int
}

// PointCloud is a packed point cloud.
type PointCloud struct {
	Width     int
	Height    int
	PointStep int
	RowStep   int
	Fields    []PointField
	Data      []byte
}

func (PointCloud) Kind() PayloadKind { return KindPointCloud }

// Check reports whether the geometry of c is consistent with its buffer.
func (c PointCloud) Check() error {
	if c.Width < 0 || c.Height < 0 || c.PointStep < 0 || c.RowStep < 0 {
		return fmt.Errorf("negative cloud dimensions")
	}
	if c.PointStep > 0 && c.Width > c.RowStep/c.PointStep {
		return fmt.Errorf("row step %d shorter than %d points of %d bytes", c.RowStep, c.Width, c.PointStep)
	}
	if c.RowStep > 0 && c.Height > len(c.Data)/c.RowStep {
		return fmt.Errorf("cloud data %d bytes shorter than %d rows of %d bytes", len(c.Data), c.Height, c.RowStep)
	}
	return nil
}

// Vector3 is a 3D vector.
type Vector3 struct {
	X, Y, Z float64
}

// Quaternion is an orientation.
type Quaternion struct {
	X, Y, Z, W float64
}

// Odometry is a pose with its velocity.
type Odometry struct {
	FrameID      string
	ChildFrameID string
	Position     Vector3
	Orientation  Quaternion
	Linear       Vector3
	Angular      Vector3
}

func (Odometry) Kind() PayloadKind { return KindOdometry }

// Twist is a velocity command.
type Twist struct {
	Linear  Vector3
	Angular Vector3
}

func (Twist) Kind() PayloadKind { return KindTwist }

// Raw carries undecoded bytes for streams without a registered decoder.
type Raw []byte

func (Raw) Kind() PayloadKind { return KindRaw }
