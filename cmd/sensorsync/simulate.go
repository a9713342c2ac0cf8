package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bft-labs/sensorsync/internal/adapters/decode"
	"github.com/bft-labs/sensorsync/internal/adapters/jsonl"
	"github.com/bft-labs/sensorsync/internal/domain"
)

// simOptions describes a synthetic recording of the default rig.
type simOptions struct {
	Frames int
	Rate   float64
	// Jitter is the standard deviation of each message's offset from its frame time
	Jitter time.Duration
	// Drop is the probability that a single message is missing
	Drop   float64
	Width  int
	Height int
	Points int
	Start  int64
	Seed   uint64
}

func defaultSimOptions() simOptions {
	return simOptions{
		Frames: 100,
		Rate:   10,
		Jitter: 5 * time.Millisecond,
		Width:  8,
		Height: 6,
		Points: 16,
		Start:  1_700_000_000_000_000_000,
		Seed:   1,
	}
}

func newSimulateCmd(log zerolog.Logger) *cobra.Command {
	opts := defaultSimOptions()
	var out string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic recording of the default sensor rig",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := simulate(w, opts)
			if err != nil {
				return err
			}
			log.Info().Int("records", n).Int("frames", opts.Frames).Str("out", out).Msg("recording written")
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "-", "output file (- for stdout)")
	cmd.Flags().IntVar(&opts.Frames, "frames", opts.Frames, "number of frames")
	cmd.Flags().Float64Var(&opts.Rate, "rate", opts.Rate, "frames per second")
	cmd.Flags().DurationVar(&opts.Jitter, "jitter", opts.Jitter, "standard deviation of per-message timing noise")
	cmd.Flags().Float64Var(&opts.Drop, "drop", opts.Drop, "probability that a message is missing")
	cmd.Flags().IntVar(&opts.Width, "width", opts.Width, "image width")
	cmd.Flags().IntVar(&opts.Height, "height", opts.Height, "image height")
	cmd.Flags().IntVar(&opts.Points, "points", opts.Points, "points per cloud")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	return cmd
}

// simulate writes opts.Frames frames of the default rig to w and returns the
// number of records written. Messages of one frame are written in stream
// order, so arrival order follows frames rather than timestamps.
func simulate(w io.Writer, opts simOptions) (int, error) {
	if opts.Frames < 0 || opts.Rate <= 0 {
		return 0, fmt.Errorf("frames must not be negative and rate must be positive")
	}
	if opts.Drop < 0 || opts.Drop >= 1 {
		return 0, fmt.Errorf("drop must be in [0, 1)")
	}

	src := rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)
	noise := distuv.Normal{Mu: 0, Sigma: float64(opts.Jitter), Src: src}
	missing := distuv.Bernoulli{P: opts.Drop, Src: src}

	period := time.Duration(float64(time.Second) / opts.Rate)
	jw := jsonl.NewWriter(w)
	written := 0

	for i := 0; i < opts.Frames; i++ {
		base := opts.Start + int64(i)*int64(period)
		t := float64(i) * period.Seconds()

		for _, stream := range domain.DefaultStreams() {
			if opts.Drop > 0 && missing.Rand() == 1 {
				continue
			}
			stamp := base
			if opts.Jitter > 0 {
				stamp += int64(noise.Rand())
			}
			if err := jw.Write(stream, stamp, simPayload(stream, t, opts)); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, jw.Flush()
}

// simPayload builds the message of stream at t seconds: the rig drives along
// x at a constant speed towards a wall.
func simPayload(stream domain.StreamID, t float64, opts simOptions) any {
	const speed = 0.5
	cmd := domain.Twist{Linear: domain.Vector3{X: speed}}

	switch stream {
	case domain.StreamDepth:
		dist := math.Max(0.5, 10-speed*t)
		step := opts.Width * 4
		data := make([]byte, step*opts.Height)
		for px := 0; px < opts.Width*opts.Height; px++ {
			binary.LittleEndian.PutUint32(data[px*4:], math.Float32bits(float32(dist)))
		}
		return decode.EncodeImage(domain.Image{
			Width: opts.Width, Height: opts.Height,
			Encoding: domain.EncodingDepth32F, Step: step, Data: data,
		})

	case domain.StreamRGB:
		step := opts.Width * 3
		data := make([]byte, step*opts.Height)
		shade := byte(int(t*25) % 256)
		for px := 0; px < opts.Width*opts.Height; px++ {
			data[px*3], data[px*3+1], data[px*3+2] = shade, 128, 255-shade
		}
		return decode.EncodeImage(domain.Image{
			Width: opts.Width, Height: opts.Height,
			Encoding: domain.EncodingRGB8, Step: step, Data: data,
		})

	case domain.StreamCloud:
		const pointStep = 12
		data := make([]byte, opts.Points*pointStep)
		for p := 0; p < opts.Points; p++ {
			angle := 2 * math.Pi * float64(p) / float64(opts.Points)
			binary.LittleEndian.PutUint32(data[p*pointStep:], math.Float32bits(float32(math.Cos(angle))))
			binary.LittleEndian.PutUint32(data[p*pointStep+4:], math.Float32bits(float32(math.Sin(angle))))
			binary.LittleEndian.PutUint32(data[p*pointStep+8:], math.Float32bits(0))
		}
		return decode.EncodePointCloud(domain.PointCloud{
			Width: opts.Points, Height: 1,
			PointStep: pointStep, RowStep: opts.Points * pointStep,
			Fields: []domain.PointField{
				{Name: "x", Offset: 0, Datatype: 7, Count: 1},
				{Name: "y", Offset: 4, Datatype: 7, Count: 1},
				{Name: "z", Offset: 8, Datatype: 7, Count: 1},
			},
			Data: data,
		})

	case domain.StreamOdom:
		return decode.EncodeOdometry(domain.Odometry{
			FrameID:      "odom",
			ChildFrameID: "base_link",
			Position:     domain.Vector3{X: speed * t},
			Orientation:  domain.Quaternion{W: 1},
			Linear:       domain.Vector3{X: speed},
		})

	case domain.StreamCmdVel, domain.StreamVelSmoother:
		return decode.EncodeTwist(cmd)
	}
	return nil
}
