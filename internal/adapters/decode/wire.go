package decode

import "github.com/bft-labs/sensorsync/internal/domain"

// JSON shapes of the feed payloads. Field names follow the recorder's
// message definitions.

type imageJSON struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Encoding    string `json:"encoding"`
	IsBigEndian int    `json:"is_bigendian"`
	Step        int    `json:"step"`
	Data        []byte `json:"data"` // base64
}

type pointFieldJSON struct {
	Name     string `json:"name"`
	Offset   int    `json:"offset"`
	Datatype int    `json:"datatype"`
	Count    int    `json:"count"`
}

type pointCloudJSON struct {
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Fields    []pointFieldJSON `json:"fields"`
	PointStep int              `json:"point_step"`
	RowStep   int              `json:"row_step"`
	Data      []byte           `json:"data"`
}

type vector3JSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v vector3JSON) vector() domain.Vector3 {
	return domain.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

type quaternionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type twistJSON struct {
	Linear  vector3JSON `json:"linear"`
	Angular vector3JSON `json:"angular"`
}

type odometryJSON struct {
	FrameID      string `json:"frame_id"`
	ChildFrameID string `json:"child_frame_id"`
	Pose         struct {
		Position    vector3JSON    `json:"position"`
		Orientation quaternionJSON `json:"orientation"`
	} `json:"pose"`
	Twist twistJSON `json:"twist"`
}

// EncodeImage returns the feed representation of img.
func EncodeImage(img domain.Image) any {
	w := imageJSON{
		Width:    img.Width,
		Height:   img.Height,
		Encoding: img.Encoding,
		Step:     img.Step,
		Data:     img.Data,
	}
	if img.BigEndian {
		w.IsBigEndian = 1
	}
	return w
}

// EncodeOdometry returns the feed representation of o.
func EncodeOdometry(o domain.Odometry) any {
	var w odometryJSON
	w.FrameID = o.FrameID
	w.ChildFrameID = o.ChildFrameID
	w.Pose.Position = vector3JSON(o.Position)
	w.Pose.Orientation = quaternionJSON(o.Orientation)
	w.Twist.Linear = vector3JSON(o.Linear)
	w.Twist.Angular = vector3JSON(o.Angular)
	return w
}

// EncodeTwist returns the feed representation of t.
func EncodeTwist(t domain.Twist) any {
	return twistJSON{Linear: vector3JSON(t.Linear), Angular: vector3JSON(t.Angular)}
}

// EncodePointCloud returns the feed representation of c.
func EncodePointCloud(c domain.PointCloud) any {
	w := pointCloudJSON{
		Width:     c.Width,
		Height:    c.Height,
		PointStep: c.PointStep,
		RowStep:   c.RowStep,
		Data:      c.Data,
	}
	for _, f := range c.Fields {
		w.Fields = append(w.Fields, pointFieldJSON(f))
	}
	return w
}
