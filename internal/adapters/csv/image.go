package csv

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bft-labs/sensorsync/internal/domain"
)

// DepthMeters returns the depth image as row-major meters.
// 16UC1 images store millimeters.
func DepthMeters(img domain.Image) ([]float32, error) {
	if err := img.Check(); err != nil {
		return nil, err
	}
	var order binary.ByteOrder = binary.LittleEndian
	if img.BigEndian {
		order = binary.BigEndian
	}

	out := make([]float32, 0, img.Width*img.Height)
	for y := 0; y < img.Height; y++ {
		row := img.Data[y*img.Step:]
		for x := 0; x < img.Width; x++ {
			switch img.Encoding {
			case domain.EncodingDepth32F:
				out = append(out, math.Float32frombits(order.Uint32(row[x*4:])))
			case domain.EncodingDepth16U:
				out = append(out, float32(order.Uint16(row[x*2:]))/1000)
			default:
				return nil, fmt.Errorf("encoding %q is not a depth encoding", img.Encoding)
			}
		}
	}
	return out, nil
}

// RGBBytes returns the three channel bytes of every pixel, row-major, in the
// order the encoding stores them.
func RGBBytes(img domain.Image) ([]uint8, error) {
	if err := img.Check(); err != nil {
		return nil, err
	}
	if img.Encoding != domain.EncodingRGB8 && img.Encoding != domain.EncodingBGR8 {
		return nil, fmt.Errorf("encoding %q is not a color encoding", img.Encoding)
	}

	out := make([]uint8, 0, img.Width*img.Height*3)
	for y := 0; y < img.Height; y++ {
		row := img.Data[y*img.Step:]
		out = append(out, row[:img.Width*3]...)
	}
	return out, nil
}
