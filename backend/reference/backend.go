// Package reference implements the shading contract on the CPU.
//
// The rasterizer follows WebGPU conventions: clip depth in [0, 1], y down in
// framebuffer space, counter-clockwise front faces, the top-left fill rule
// and a Less depth test on float32 depth. Output is deterministic for a given
// build, which makes the backend the baseline for sequencer and parity tests.
package reference

import (
	"fmt"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/backend"
	"github.com/gogpu/offscreen/internal/parallel"
	"github.com/gogpu/offscreen/internal/shading"
	"github.com/gogpu/offscreen/math3d"
	"github.com/gogpu/offscreen/scene"
)

func init() {
	backend.Register(backend.Reference, func() backend.Backend {
		return New()
	})
}

// Backend is the CPU reference backend. It has no device and Init never
// fails.
type Backend struct {
	initialized bool
	workers     int
}

// New returns an uninitialized reference backend that rasterizes on
// GOMAXPROCS goroutines.
func New() *Backend {
	return &Backend{}
}

// NewWithWorkers returns a reference backend whose renderers rasterize on n
// goroutines. Output does not depend on n.
func NewWithWorkers(n int) *Backend {
	return &Backend{workers: n}
}

// Name returns "reference".
func (b *Backend) Name() string { return backend.Reference }

// Init marks the backend ready.
func (b *Backend) Init() error {
	b.initialized = true
	offscreen.Logger().Info("reference: initialized")
	return nil
}

// Close releases nothing.
func (b *Backend) Close() {
	b.initialized = false
}

// Create validates the mesh and configuration and returns a Renderer.
func (b *Backend) Create(mesh scene.Mesh, cfg offscreen.PipelineConfig) (offscreen.Renderer, error) {
	if !b.initialized {
		return nil, offscreen.NewError(offscreen.KindResourceCreation, "create", backend.ErrNotInitialized)
	}
	if err := cfg.Validate(); err != nil {
		return nil, offscreen.NewError(offscreen.KindResourceCreation, "pipeline config", err)
	}
	if err := mesh.Validate(); err != nil {
		return nil, offscreen.NewError(offscreen.KindResourceCreation, "mesh upload", err)
	}

	r := &Renderer{
		cfg:  cfg,
		mode: shading.ModeFor(mesh.Layout),
		mesh: scene.Mesh{
			Layout:   mesh.Layout,
			Vertices: append([]scene.Vertex(nil), mesh.Vertices...),
			Indices:  append([]uint32(nil), mesh.Indices...),
		},
		target: newTarget(cfg.Width, cfg.Height),
		pool:   parallel.NewWorkerPool(b.workers),
	}
	offscreen.Logger().Debug("reference: renderer created",
		"width", cfg.Width, "height", cfg.Height,
		"mode", r.mode, "triangles", mesh.TriangleCount(),
		"workers", r.pool.Workers())
	return r, nil
}

// Renderer rasterizes one mesh into an owned color and depth target.
// Triangles are set up serially and then rasterized in horizontal bands,
// each band drawing every triangle in index order.
type Renderer struct {
	cfg       offscreen.PipelineConfig
	mode      shading.Mode
	mesh      scene.Mesh
	target    *target
	pool      *parallel.WorkerPool
	tris      []screenTri
	destroyed bool
}

// Config returns the configuration the renderer was created with.
func (r *Renderer) Config() offscreen.PipelineConfig { return r.cfg }

// Render draws the mesh with u and returns the frame.
func (r *Renderer) Render(u scene.Uniforms) (*offscreen.Frame, error) {
	if r.destroyed {
		return nil, offscreen.NewError(offscreen.KindRenderSubmission, "render", offscreen.ErrDestroyed)
	}
	if err := u.Validate(); err != nil {
		return nil, offscreen.NewError(offscreen.KindUniformPacking, "uniforms", err)
	}

	t := r.target
	t.clear(r.cfg.ClearColor)

	mvp := u.Transforms.MVP()
	model := u.Transforms.Model
	verts := make([]vertex, len(r.mesh.Vertices))
	for i, v := range r.mesh.Vertices {
		out := vertex{
			clip:  shading.Project(v.Position, mvp),
			world: shading.WorldPosition(v.Position, model),
			attr:  v.Attr,
		}
		if r.mode == shading.Smooth {
			// Model is a similarity (checked by Validate), so it maps
			// normals like its inverse transpose up to length.
			out.attr = model.MulDir(v.Attr).Normalize()
		}
		verts[i] = out
	}

	var shade func(fragment) math3d.Vec3
	flat := r.mode == shading.Flat
	if flat {
		shade = func(f fragment) math3d.Vec3 {
			n := shading.ReconstructFlatNormal(f.dpdx, f.dpdy)
			return shading.ShadeFlat(n, f.world, f.attr, u)
		}
	} else {
		shade = func(f fragment) math3d.Vec3 {
			return shading.ShadeSmooth(f.attr, f.world, u)
		}
	}

	idx := r.mesh.Indices
	r.tris = r.tris[:0]
	for i := 0; i+2 < len(idx); i += 3 {
		r.tris = t.setup(r.tris, [3]vertex{verts[idx[i]], verts[idx[i+1]], verts[idx[i+2]]})
	}
	r.pool.ForEachBand(t.height, func(band parallel.Band) {
		for _, st := range r.tris {
			t.rasterize(st, band.Y0, band.Y1, flat, shade)
		}
	})

	if len(t.color) != r.cfg.Width*r.cfg.Height*4 {
		return nil, offscreen.NewError(offscreen.KindReadback, "copy",
			fmt.Errorf("target holds %d bytes, want %d", len(t.color), r.cfg.Width*r.cfg.Height*4))
	}
	frame := offscreen.NewFrame(r.cfg.Width, r.cfg.Height)
	copy(frame.Pix, t.color)
	return frame, nil
}

// Destroy drops the target. It is safe to call more than once.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.pool.Close()
	r.target = nil
	r.tris = nil
	r.mesh = scene.Mesh{}
}
