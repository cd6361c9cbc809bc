// Package replay loads recorded sequences: per-frame detections, keypoints,
// correspondences and lidar points produced by the upstream detector and
// feature pipeline, together with the sensor calibration.
package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/collision.report/internal/fusion"
	"github.com/banshee-data/collision.report/internal/fusion/projection"
	"github.com/banshee-data/collision.report/internal/monitoring"
	"github.com/banshee-data/collision.report/internal/security"
	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
)

// MaxFileSize bounds the sequence files Load accepts.
const MaxFileSize = 256 * 1024 * 1024

// ErrInvalidSequence is wrapped by every structural problem in a sequence.
var ErrInvalidSequence = errors.New("invalid sequence")

// Options controls optional loading work.
type Options struct {
	// LoadImages decodes each frame's image file. Paths are relative to the
	// sequence file.
	LoadImages bool
}

// Sequence is a loaded recording.
type Sequence struct {
	Path        string
	FrameRate   float64
	Calibration *projection.Calibration
	Frames      []*fusion.Frame
}

type fileSequence struct {
	FrameRate   float64         `json:"frame_rate"`
	Calibration fileCalibration `json:"calibration"`
	Frames      []fileFrame     `json:"frames"`
}

type fileCalibration struct {
	PRect []float64 `json:"p_rect"`
	RRect []float64 `json:"r_rect"`
	RT    []float64 `json:"rt"`
}

type fileFrame struct {
	Timestamp   *time.Time   `json:"timestamp,omitempty"`
	Image       string       `json:"image,omitempty"`
	Keypoints   [][2]float64 `json:"keypoints"`
	KptMatches  [][2]int     `json:"kpt_matches"`
	LidarPoints [][4]float64 `json:"lidar_points"`
	Boxes       []fileBox    `json:"boxes"`
}

type fileBox struct {
	ID         int        `json:"id"`
	ClassID    int        `json:"class_id"`
	Confidence float64    `json:"confidence"`
	ROI        [4]float64 `json:"roi"` // x, y, width, height
}

// Load reads the sequence at path. The file must have a .json extension and
// be at most MaxFileSize bytes.
func Load(path string, opts Options) (*Sequence, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("sequence file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat sequence file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("sequence file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sequence file: %w", err)
	}
	defer f.Close()

	seq, err := Decode(f, filepath.Dir(cleanPath), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	seq.Path = cleanPath
	monitoring.Logf("[replay] loaded %s: %d frames at %.1f Hz", cleanPath, len(seq.Frames), seq.FrameRate)
	return seq, nil
}

// Decode parses a sequence from r. Image paths are resolved against baseDir.
func Decode(r io.Reader, baseDir string, opts Options) (*Sequence, error) {
	var fs fileSequence
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fs); err != nil {
		return nil, fmt.Errorf("failed to parse sequence JSON: %w", err)
	}

	if !(fs.FrameRate > 0) || math.IsInf(fs.FrameRate, 0) {
		return nil, fmt.Errorf("%w: frame_rate must be positive, got %v", ErrInvalidSequence, fs.FrameRate)
	}
	cal, err := projection.NewCalibrationFromSlices(fs.Calibration.PRect, fs.Calibration.RRect, fs.Calibration.RT)
	if err != nil {
		return nil, err
	}

	seq := &Sequence{FrameRate: fs.FrameRate, Calibration: cal, Frames: make([]*fusion.Frame, len(fs.Frames))}
	interval := time.Duration(float64(time.Second) / fs.FrameRate)
	for i, ff := range fs.Frames {
		frame, err := ff.toFrame(i, interval)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if opts.LoadImages && ff.Image != "" {
			imgPath, err := security.ResolveRelative(baseDir, ff.Image)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			img, err := imaging.Open(imgPath)
			if err != nil {
				return nil, fmt.Errorf("frame %d: failed to load image: %w", i, err)
			}
			frame.Image = img
		}
		seq.Frames[i] = frame
	}
	return seq, nil
}

func (ff fileFrame) toFrame(index int, interval time.Duration) (*fusion.Frame, error) {
	frame := &fusion.Frame{
		Index:       index,
		Timestamp:   time.Unix(0, 0).UTC().Add(time.Duration(index) * interval),
		Keypoints:   make([]fusion.Keypoint, len(ff.Keypoints)),
		KptMatches:  make([]fusion.Correspondence, len(ff.KptMatches)),
		LidarPoints: make([]fusion.LidarPoint, len(ff.LidarPoints)),
	}
	if ff.Timestamp != nil {
		frame.Timestamp = *ff.Timestamp
	}
	for i, k := range ff.Keypoints {
		frame.Keypoints[i] = fusion.Keypoint{Pt: r2.Point{X: k[0], Y: k[1]}}
	}
	for i, m := range ff.KptMatches {
		frame.KptMatches[i] = fusion.Correspondence{QueryIdx: m[0], TrainIdx: m[1]}
	}
	for i, p := range ff.LidarPoints {
		frame.LidarPoints[i] = fusion.LidarPoint{X: p[0], Y: p[1], Z: p[2], R: p[3]}
	}
	for _, b := range ff.Boxes {
		roi := fusion.Rect{X: b.ROI[0], Y: b.ROI[1], Width: b.ROI[2], Height: b.ROI[3]}
		if b.ID < 0 {
			return nil, fmt.Errorf("%w: negative box id %d", ErrInvalidSequence, b.ID)
		}
		if roi.Empty() {
			return nil, fmt.Errorf("%w: box %d has an empty roi", ErrInvalidSequence, b.ID)
		}
		frame.BoundingBoxes = append(frame.BoundingBoxes, fusion.BoundingBox{
			ID:         b.ID,
			ROI:        roi,
			ClassID:    b.ClassID,
			Confidence: b.Confidence,
		})
	}
	return frame, nil
}
