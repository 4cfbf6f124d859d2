// Command offscreen renders a mesh along a camera trajectory to numbered
// image files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/gogpu/gpucontext"
	"github.com/schollz/progressbar/v3"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/backend"
	_ "github.com/gogpu/offscreen/backend/explicit"
	_ "github.com/gogpu/offscreen/backend/portable"
	_ "github.com/gogpu/offscreen/backend/reference"
	"github.com/gogpu/offscreen/internal/config"
	"github.com/gogpu/offscreen/internal/logging"
	"github.com/gogpu/offscreen/sequencer"
)

func main() {
	var flags config.Flags
	flags.Register(flag.CommandLine)
	writeConfig := flag.String("write-config", "", "Write the effective config to this path and exit")
	quiet := flag.Bool("quiet", false, "Disable the progress bar")
	flag.Parse()

	cfg, err := config.Load(flags.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *writeConfig != "" {
		if err := cfg.SaveTo(*writeConfig); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	var file logging.FileConfig
	if cfg.Logging.File != "" {
		file = logging.DefaultFileConfig(cfg.Logging.File)
	}
	log := logging.New(logging.Options{Level: cfg.Logging.Level, Console: os.Stderr, File: file})
	defer log.Sync()
	offscreen.SetLogger(log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, !*quiet); err != nil {
		log.Error("render failed", "err", err, "frame", offscreen.FrameOf(err))
		log.Sync()
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, progress bool) error {
	pc, err := cfg.Pipeline()
	if err != nil {
		return err
	}
	mesh, err := cfg.Mesh()
	if err != nil {
		return err
	}
	traj, err := cfg.Sequence(pc.Aspect())
	if err != nil {
		return err
	}
	format, err := cfg.Format()
	if err != nil {
		return err
	}
	namer := cfg.Namer()

	b, err := backend.Open(cfg.Backend)
	if err != nil {
		return err
	}
	defer b.Close()

	log := offscreen.Logger()
	if ai, ok := b.(interface{ Info() gpucontext.AdapterInfo }); ok {
		info := ai.Info()
		log.Info("backend ready", "backend", b.Name(), "adapter", info.Name, "type", info.Type)
	} else {
		log.Info("backend ready", "backend", b.Name())
	}

	opts := sequencer.Options{Dir: cfg.Output.Dir, Namer: &namer, Format: format}
	if progress {
		bar := progressbar.Default(int64(traj.Len()), "rendering")
		defer bar.Close()
		opts.Observer = func(sequencer.Progress) { _ = bar.Add(1) }
	}

	res, err := sequencer.RunMesh(ctx, b, mesh, pc, traj, opts)
	if err != nil {
		return err
	}
	log.Info("frames written", "count", len(res.Files), "dir", cfg.Output.Dir, "elapsed", res.Elapsed)
	return nil
}

// exitCode maps failures to distinct statuses so scripts can tell
// configuration problems from device and output failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid), errors.Is(err, sequencer.ErrInvalidTrajectory):
		return 2
	case errors.Is(err, backend.ErrBackendNotAvailable), errors.Is(err, offscreen.ErrResourceCreation):
		return 3
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
