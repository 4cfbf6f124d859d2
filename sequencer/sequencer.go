// Package sequencer renders a trajectory of uniform blocks to numbered
// image files.
//
// A run is single-threaded and blocking. Every step is validated before the
// first frame is rendered, so an invalid trajectory leaves no files behind.
// Files are written atomically and existing ones are overwritten, which
// makes a run restartable.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/internal/imageio"
	"github.com/gogpu/offscreen/scene"
)

// Errors reported before any frame is rendered.
var (
	// ErrInvalidTrajectory is returned for empty trajectories, out-of-range
	// steps and steps whose uniforms fail validation.
	ErrInvalidTrajectory = errors.New("sequencer: invalid trajectory")

	// ErrInvalidNamer is returned for unusable file name settings.
	ErrInvalidNamer = errors.New("sequencer: invalid namer")

	// ErrOutputDir is returned when the output directory can not be used.
	ErrOutputDir = errors.New("sequencer: unusable output directory")
)

// Progress describes one written frame.
type Progress struct {
	Index   int
	Total   int
	Path    string
	Elapsed time.Duration
}

// Options controls where and how frames are written.
type Options struct {
	// Dir is created if missing. Empty means the working directory.
	Dir string

	// Namer defaults to DefaultNamer with the extension of Format.
	Namer *Namer

	Format imageio.Format

	// Observer, if set, is called after each frame is written.
	Observer func(Progress)
}

// Result lists the files written, in frame order.
type Result struct {
	Files   []string
	Elapsed time.Duration
}

func (o Options) namer() Namer {
	if o.Namer != nil {
		return *o.Namer
	}
	n := DefaultNamer()
	n.Ext = o.Format.Ext()
	return n
}

// Run renders every step of t with r and writes one file per frame.
//
// Failures after validation are returned as *offscreen.Error carrying the
// frame index; files written before the failure are kept and reported in
// the Result. ctx is checked between frames.
func Run(ctx context.Context, r offscreen.Renderer, t Trajectory, opts Options) (Result, error) {
	var res Result
	start := time.Now()

	steps, err := validate(t)
	if err != nil {
		return res, err
	}
	namer := opts.namer()
	if err := namer.Validate(len(steps)); err != nil {
		return res, err
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	if err := prepareDir(dir); err != nil {
		return res, err
	}

	log := offscreen.Logger()
	cfg := r.Config()
	log.Info("sequencer: starting",
		"frames", len(steps), "dir", dir, "format", opts.Format,
		"width", cfg.Width, "height", cfg.Height)

	for i, u := range steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		frameStart := time.Now()

		frame, err := r.Render(u)
		if err != nil {
			return res, offscreen.WithFrame(err, i)
		}
		if frame.Width != cfg.Width || frame.Height != cfg.Height || len(frame.Pix) != frame.Stride()*frame.Height {
			return res, &offscreen.Error{
				Kind:  offscreen.KindReadback,
				Op:    "frame size",
				Frame: i,
				Err: fmt.Errorf("got %dx%d with %d bytes, want %dx%d",
					frame.Width, frame.Height, len(frame.Pix), cfg.Width, cfg.Height),
			}
		}

		path := filepath.Join(dir, namer.Name(i))
		if err := imageio.WriteFile(path, frame.Image(), opts.Format); err != nil {
			return res, &offscreen.Error{Kind: offscreen.KindOutput, Op: "write frame", Frame: i, Err: err}
		}
		res.Files = append(res.Files, path)

		elapsed := time.Since(frameStart)
		log.Debug("sequencer: frame written", "index", i, "path", path, "elapsed", elapsed)
		if opts.Observer != nil {
			opts.Observer(Progress{Index: i, Total: len(steps), Path: path, Elapsed: elapsed})
		}
	}

	res.Elapsed = time.Since(start)
	log.Info("sequencer: done", "frames", len(res.Files), "elapsed", res.Elapsed)
	return res, nil
}

// RunMesh creates a renderer for mesh on b, runs the trajectory and
// destroys the renderer. Creation failures, including malformed meshes,
// happen before any file is written.
func RunMesh(ctx context.Context, b offscreen.Backend, mesh scene.Mesh, cfg offscreen.PipelineConfig, t Trajectory, opts Options) (Result, error) {
	if _, err := validate(t); err != nil {
		return Result{}, err
	}
	r, err := b.Create(mesh, cfg)
	if err != nil {
		return Result{}, err
	}
	defer r.Destroy()
	return Run(ctx, r, t, opts)
}

// validate materializes every step so invalid trajectories fail before the
// first render.
func validate(t Trajectory) ([]scene.Uniforms, error) {
	if t == nil || t.Len() < 1 {
		return nil, fmt.Errorf("%w: no frames", ErrInvalidTrajectory)
	}
	steps := make([]scene.Uniforms, t.Len())
	for i := range steps {
		u, err := t.Step(i)
		if err != nil {
			return nil, stepError(i, err)
		}
		if err := u.Validate(); err != nil {
			return nil, stepError(i, fmt.Errorf("%w: %w", ErrInvalidTrajectory, err))
		}
		steps[i] = u
	}
	return steps, nil
}

func stepError(i int, err error) error {
	return &offscreen.Error{Kind: offscreen.KindUniformPacking, Op: "validate step", Frame: i, Err: err}
}

func prepareDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputDir, err)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputDir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrOutputDir, dir)
	}
	return nil
}
