package anim

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Errors.
var (
	ErrBusy     = errors.New("sampler is busy")
	ErrBadFPS   = errors.New("frame rate must be positive")
	ErrNoEffect = errors.New("action keys no exported bone")
)

// Pruning thresholds.
const (
	// TrackEpsilon bounds translation, rotation angle and scale deviation
	// of a trivial skeletal keyframe, and vertex movement of a trivial
	// morph keyframe.
	TrackEpsilon = 1e-5
	// InfluenceEpsilon is the smallest pose influence referenced.
	InfluenceEpsilon = 1e-6
)

// Keyframe reduction modes.
const (
	ReductionNone    = "none"
	ReductionTrivial = "trivial"
)

// Clip is a frame range sampled from one action. Start may be after End,
// in which case frames are sampled backwards.
type Clip struct {
	Name   string
	Action string
	Start  int
	End    int
}

// Frames returns the frames in sampling order.
func (c Clip) Frames() []int {
	step := 1
	if c.End < c.Start {
		step = -1
	}
	n := (c.End-c.Start)*step + 1
	out := make([]int, n)
	for i := range out {
		out[i] = c.Start + i*step
	}
	return out
}

// Time returns the keyframe time of a frame.
func (c Clip) Time(frame int, fps float64) float64 {
	d := frame - c.Start
	if d < 0 {
		d = -d
	}
	return float64(d) / fps
}

// Length returns the clip duration in seconds.
func (c Clip) Length(fps float64) float64 {
	return c.Time(c.End, fps)
}

// Backward reports whether the clip plays its frame range in reverse.
func (c Clip) Backward() bool { return c.End < c.Start }

// State is the lifecycle of one clip in a Sampler.
type State int

// Sampler states.
const (
	Idle State = iota
	Sampling
	Finalizing
	Done
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Sampling:
		return "Sampling"
	case Finalizing:
		return "Finalizing"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Options controls sampling.
type Options struct {
	FixUpAxis bool
	// Reduction is ReductionNone or ReductionTrivial.
	Reduction string
}

// Sampler samples one clip at a time from a host. It is not safe for
// concurrent use.
type Sampler struct {
	host  Host
	opts  Options
	state State
}

// NewSampler returns an idle sampler.
func NewSampler(h Host, opts Options) *Sampler {
	return &Sampler{host: h, opts: opts}
}

// State returns the lifecycle state of the last clip.
func (s *Sampler) State() State { return s.state }

// run drives one clip through Sampling, Finalizing and Done. sample records
// keyframes with the host state owned by ctx; finalize prunes and reduces.
// The host state is restored before run returns.
func (s *Sampler) run(objects []string, sample func() error, finalize func()) (err error) {
	if s.state == Sampling || s.state == Finalizing {
		return ErrBusy
	}
	if s.host.FPS() <= 0 {
		return fmt.Errorf("%w: %v", ErrBadFPS, s.host.FPS())
	}

	s.state = Sampling
	ctx := Acquire(s.host, objects...)
	defer func() {
		err = multierr.Append(err, ctx.Release())
		if err != nil {
			s.state = Idle
		}
	}()

	if err := sample(); err != nil {
		return err
	}
	s.state = Finalizing
	finalize()
	s.state = Done
	return nil
}

func (s *Sampler) reduce() bool { return s.opts.Reduction == ReductionTrivial }

// reduceTrivial drops interior keyframes equal to both neighbours. First
// and last keyframes are always kept.
func reduceTrivial[K any](keys []K, equal func(a, b K) bool) []K {
	if len(keys) < 3 {
		return keys
	}
	out := make([]K, 0, len(keys))
	out = append(out, keys[0])
	for i := 1; i < len(keys)-1; i++ {
		if equal(keys[i-1], keys[i]) && equal(keys[i], keys[i+1]) {
			continue
		}
		out = append(out, keys[i])
	}
	return append(out, keys[len(keys)-1])
}
