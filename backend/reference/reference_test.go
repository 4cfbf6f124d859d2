package reference

import (
	"errors"
	"testing"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/backend"
	"github.com/gogpu/offscreen/internal/shading"
	"github.com/gogpu/offscreen/math3d"
	"github.com/gogpu/offscreen/scene"
)

func smallConfig() offscreen.PipelineConfig {
	cfg := offscreen.DefaultPipelineConfig()
	cfg.Width, cfg.Height = 96, 64
	return cfg
}

func newRenderer(t *testing.T, mesh scene.Mesh, cfg offscreen.PipelineConfig) offscreen.Renderer {
	t.Helper()
	b := New()
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	r, err := b.Create(mesh, cfg)
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	t.Cleanup(r.Destroy)
	return r
}

func cubeUniforms(cfg offscreen.PipelineConfig) scene.Uniforms {
	return scene.NewUniforms(scene.DefaultCamera(), cfg.Aspect(), math3d.RotateY(0.3),
		scene.DefaultLight(), math3d.V3(1, 1, 1))
}

func TestRegistered(t *testing.T) {
	b := backend.Get(backend.Reference)
	if b == nil {
		t.Fatal("reference backend not registered")
	}
	if b.Name() != backend.Reference {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestCreateBeforeInit(t *testing.T) {
	_, err := New().Create(scene.Cube(), smallConfig())
	if !errors.Is(err, offscreen.ErrResourceCreation) || !errors.Is(err, backend.ErrNotInitialized) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateRejectsBadMesh(t *testing.T) {
	b := New()
	_ = b.Init()
	m := scene.Cube()
	m.Indices[5] = 42

	_, err := b.Create(m, smallConfig())
	if !errors.Is(err, offscreen.ErrResourceCreation) {
		t.Fatalf("err = %v, want ResourceCreation", err)
	}
	if !errors.Is(err, scene.ErrIndexOutOfRange) {
		t.Errorf("err = %v, want cause ErrIndexOutOfRange", err)
	}
}

func TestCreateRejectsBadConfig(t *testing.T) {
	b := New()
	_ = b.Init()
	cfg := smallConfig()
	cfg.Width = 0
	if _, err := b.Create(scene.Cube(), cfg); !errors.Is(err, offscreen.ErrResourceCreation) {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderCube(t *testing.T) {
	cfg := smallConfig()
	r := newRenderer(t, scene.Cube(), cfg)

	f, err := r.Render(cubeUniforms(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != cfg.Width || f.Height != cfg.Height || len(f.Pix) != cfg.Width*cfg.Height*4 {
		t.Fatalf("frame %dx%d len %d", f.Width, f.Height, len(f.Pix))
	}

	bg := math3d.Quantize8(0.1)
	if r, g, b, a := f.RGBA(0, 0); r != bg || g != bg || b != bg || a != 255 {
		t.Errorf("corner = %d,%d,%d,%d, want clear color", r, g, b, a)
	}
	if r, g, b, _ := f.RGBA(cfg.Width/2, cfg.Height/2); r == bg && g == bg && b == bg {
		t.Error("center pixel not covered by the cube")
	}
}

func TestRenderDeterministic(t *testing.T) {
	cfg := smallConfig()
	for _, mesh := range []scene.Mesh{scene.Cube(), scene.SmoothCube(), scene.UVSphere(8, 16)} {
		r := newRenderer(t, mesh, cfg)
		u := cubeUniforms(cfg)
		a, err := r.Render(u)
		if err != nil {
			t.Fatal(err)
		}
		b, err := r.Render(u)
		if err != nil {
			t.Fatal(err)
		}
		if !a.Equal(b) {
			t.Errorf("%v: consecutive renders differ", mesh.Layout)
		}
	}
}

func TestRenderAfterDestroy(t *testing.T) {
	cfg := smallConfig()
	b := New()
	_ = b.Init()
	r, err := b.Create(scene.Cube(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	r.Destroy()
	r.Destroy()
	if _, err := r.Render(cubeUniforms(cfg)); !errors.Is(err, offscreen.ErrDestroyed) {
		t.Fatalf("err = %v, want ErrDestroyed", err)
	}
}

func TestRenderRejectsBadUniforms(t *testing.T) {
	cfg := smallConfig()
	r := newRenderer(t, scene.Cube(), cfg)
	u := cubeUniforms(cfg)
	u.Light.Intensity = -2
	if _, err := r.Render(u); !errors.Is(err, offscreen.ErrUniformPacking) {
		t.Fatalf("err = %v, want UniformPacking", err)
	}

	smooth := newRenderer(t, scene.SmoothCube(), cfg)
	u = cubeUniforms(cfg)
	u.Transforms.Model = math3d.Scale(math3d.V3(1, 0.25, 1))
	_, err := smooth.Render(u)
	if !errors.Is(err, offscreen.ErrUniformPacking) || !errors.Is(err, scene.ErrNonUniformScale) {
		t.Errorf("stretched model: err = %v", err)
	}
}

// quad returns a flat-shaded white square in the z=0 plane facing +Z.
func quad() scene.Mesh {
	white := math3d.V3(1, 1, 1)
	return scene.Mesh{
		Layout: scene.LayoutPositionColor,
		Vertices: []scene.Vertex{
			{Position: math3d.V3(-1, -1, 0), Attr: white},
			{Position: math3d.V3(1, -1, 0), Attr: white},
			{Position: math3d.V3(1, 1, 0), Attr: white},
			{Position: math3d.V3(-1, 1, 0), Attr: white},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

func quadUniforms(aspect float32, light math3d.Vec3) scene.Uniforms {
	cam := scene.DefaultCamera()
	cam.Eye = math3d.V3(0, 0, 3)
	return scene.NewUniforms(cam, aspect, math3d.Identity(),
		scene.Light{Position: light, Color: math3d.V3(1, 1, 1), Intensity: 1},
		math3d.V3(1, 1, 1))
}

func TestLightBehindIsAmbientOnly(t *testing.T) {
	cfg := smallConfig()
	r := newRenderer(t, quad(), cfg)

	f, err := r.Render(quadUniforms(cfg.Aspect(), math3d.V3(0.5, 2, -4)))
	if err != nil {
		t.Fatal(err)
	}
	ambient := math3d.Quantize8(shading.Ambient)
	if r, g, b, _ := f.RGBA(cfg.Width/2, cfg.Height/2); r != ambient || g != ambient || b != ambient {
		t.Errorf("center = %d,%d,%d, want ambient %d", r, g, b, ambient)
	}
}

func TestLightInFrontBrightens(t *testing.T) {
	cfg := smallConfig()
	r := newRenderer(t, quad(), cfg)

	f, err := r.Render(quadUniforms(cfg.Aspect(), math3d.V3(0, 0, 2)))
	if err != nil {
		t.Fatal(err)
	}
	want := math3d.Quantize8(shading.Ambient + shading.Attenuation(2))
	if r, _, _, _ := f.RGBA(cfg.Width/2, cfg.Height/2); int(r)-int(want) > 1 || int(want)-int(r) > 1 {
		t.Errorf("center red = %d, want ~%d", r, want)
	}
}

func TestBackFacesCulled(t *testing.T) {
	cfg := smallConfig()
	m := quad()
	m.Indices = []uint32{0, 2, 1, 0, 3, 2} // clockwise from +Z
	r := newRenderer(t, m, cfg)

	f, err := r.Render(quadUniforms(cfg.Aspect(), math3d.V3(0, 0, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if !f.Equal(clearFrame(cfg)) {
		t.Error("back-facing quad produced fragments")
	}
}

// clearFrame returns a frame holding only the clear color of cfg.
func clearFrame(cfg offscreen.PipelineConfig) *offscreen.Frame {
	tg := newTarget(cfg.Width, cfg.Height)
	tg.clear(cfg.ClearColor)
	f := offscreen.NewFrame(cfg.Width, cfg.Height)
	copy(f.Pix, tg.color)
	return f
}

func TestFlatNormalConstantAcrossTriangle(t *testing.T) {
	tri := [3]math3d.Vec3{
		math3d.V3(-1.5, -1, 0.5),
		math3d.V3(1.5, -0.5, -0.5),
		math3d.V3(0, 1.5, 0),
	}
	want := shading.FlatNormal(tri[0], tri[1], tri[2])

	for _, eye := range []math3d.Vec3{
		math3d.V3(0, 0, 4),
		math3d.V3(2.5, 1, 3),
		math3d.V3(-3, 2, 2.5),
	} {
		cam := scene.DefaultCamera()
		cam.Eye = eye
		vp := cam.ViewProj(1)

		tg := newTarget(128, 128)
		tg.clear(math3d.V4(0, 0, 0, 1))
		var verts [3]vertex
		for i, p := range tri {
			verts[i] = vertex{clip: shading.Project(p, vp), world: p}
		}

		n := 0
		tg.drawTriangle(verts, true, func(f fragment) math3d.Vec3 {
			got := shading.ReconstructFlatNormal(f.dpdx, f.dpdy)
			if !got.ApproxEqual(want, 1e-3) {
				t.Fatalf("eye %v: normal %v, want %v", eye, got, want)
			}
			n++
			return math3d.Vec3{}
		})
		if n == 0 {
			t.Fatalf("eye %v: no fragments", eye)
		}
	}
}

func TestSharedEdgeCoveredOnce(t *testing.T) {
	cam := scene.DefaultCamera()
	cam.Eye = math3d.V3(0.3, 0.2, 3)
	vp := cam.ViewProj(1)
	q := quad()

	tg := newTarget(64, 64)
	tg.clear(math3d.V4(0, 0, 0, 1))
	hits := make([]int, 64*64)
	for i := 0; i < len(q.Indices); i += 3 {
		// Reset depth so the second triangle is not rejected by the first.
		for j := range tg.depth {
			tg.depth[j] = 1
		}
		var verts [3]vertex
		for k := 0; k < 3; k++ {
			p := q.Vertices[q.Indices[i+k]].Position
			verts[k] = vertex{clip: shading.Project(p, vp), world: p}
		}
		tg.drawTriangle(verts, false, func(f fragment) math3d.Vec3 {
			// Recover the pixel from its world position on z=0.
			c := shading.Project(f.world, vp)
			x := int((c.X/c.W*0.5 + 0.5) * 64)
			y := int((0.5 - c.Y/c.W*0.5) * 64)
			if x >= 0 && x < 64 && y >= 0 && y < 64 {
				hits[y*64+x]++
			}
			return math3d.V3(1, 1, 1)
		})
	}
	for i, h := range hits {
		if h > 1 {
			t.Fatalf("pixel (%d,%d) shaded %d times", i%64, i/64, h)
		}
	}
}

func TestClipPolygonNearPlane(t *testing.T) {
	poly := []vertex{
		{clip: math3d.V4(0, 0, -1, 1)},
		{clip: math3d.V4(1, 0, 0.5, 1)},
		{clip: math3d.V4(0, 1, 0.5, 1)},
	}
	out := clipPolygon(poly)
	if len(out) != 4 {
		t.Fatalf("clipped to %d vertices, want 4", len(out))
	}
	for _, v := range out {
		if v.clip.Z < -1e-6 || v.clip.Z > v.clip.W+1e-6 {
			t.Errorf("vertex %v outside depth range", v.clip)
		}
	}
	if got := clipPolygon([]vertex{
		{clip: math3d.V4(0, 0, -1, 1)},
		{clip: math3d.V4(1, 0, -2, 1)},
		{clip: math3d.V4(0, 1, -0.5, 1)},
	}); len(got) != 0 {
		t.Errorf("fully clipped triangle kept %d vertices", len(got))
	}
}

func TestRenderIndependentOfWorkers(t *testing.T) {
	cfg := smallConfig()
	cfg.Height = 100
	u := cubeUniforms(cfg)

	var frames []*offscreen.Frame
	for _, n := range []int{1, 3, 8} {
		b := NewWithWorkers(n)
		if err := b.Init(); err != nil {
			t.Fatal(err)
		}
		r, err := b.Create(scene.UVSphere(12, 18), cfg)
		if err != nil {
			t.Fatal(err)
		}
		f, err := r.Render(u)
		r.Destroy()
		if err != nil {
			t.Fatalf("workers %d: %v", n, err)
		}
		frames = append(frames, f)
	}
	for i := 1; i < len(frames); i++ {
		if !frames[0].Equal(frames[i]) {
			t.Errorf("frame %d differs from single-worker output", i)
		}
	}
}
