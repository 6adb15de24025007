// physics/doc.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package physics

import (
	"log/slog"
	"slices"
	"time"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/log"
	"github.com/lxengine/lxengine/math"
	"github.com/lxengine/lxengine/util"

	"github.com/go-gl/mathgl/mgl32"
)

// ComponentName is the name that physics components are attached under,
// both on the document and on elements.
const ComponentName = "physics"

const airDensity = 1.29 // kg/m^3

type Options struct {
	// Step is the fixed simulation time step, in seconds.
	Step float32
	// MaxSubSteps bounds the number of steps taken for one update after a
	// long frame.
	MaxSubSteps int
	// TimeScale multiplies elapsed time; 0.5 runs the simulation at half
	// speed.
	TimeScale float32
	// BodyTags are the element tags that get a rigid body.
	BodyTags []string
}

func DefaultOptions() Options {
	return Options{
		Step:        1.0 / 60,
		MaxSubSteps: 10,
		TimeScale:   1,
		BodyTags:    []string{"Ref", "Sphere", "Cube"},
	}
}

func (o Options) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("step", float64(o.Step)),
		slog.Int("max_substeps", o.MaxSubSteps),
		slog.Float64("time_scale", float64(o.TimeScale)),
		slog.Any("body_tags", o.BodyTags))
}

// Doc is the document component that owns the simulation. It attaches a
// Body to each element whose tag is one of Options.BodyTags and a Scene
// to <Scene> elements. On each update it advances the simulation, writes
// the bodies' transforms back to their elements, and calls the elements'
// onCollision callbacks.
type Doc struct {
	sim       Simulation
	shapes    *ShapeCache
	opts      Options
	lg        *log.Logger
	factories map[string]dom.ComponentFactory

	bodies    map[BodyHandle]*Body
	windSpeed float32
	windDir   mgl32.Vec3
	enabled   bool
	writing   bool

	now  func() time.Time
	last time.Time
}

func NewDoc(sim Simulation, shapes *ShapeCache, opts Options, lg *log.Logger) *Doc {
	def := DefaultOptions()
	opts.Step = util.Select(opts.Step > 0, opts.Step, def.Step)
	opts.MaxSubSteps = util.Select(opts.MaxSubSteps > 0, opts.MaxSubSteps, def.MaxSubSteps)
	opts.TimeScale = util.Select(opts.TimeScale > 0, opts.TimeScale, def.TimeScale)
	if opts.BodyTags == nil {
		opts.BodyTags = def.BodyTags
	}
	if shapes == nil {
		shapes = NewShapeCache()
	}

	lg.Info("physics", slog.Any("options", opts))
	return &Doc{
		sim:       sim,
		shapes:    shapes,
		opts:      opts,
		lg:        lg,
		factories: make(map[string]dom.ComponentFactory),
		bodies:    make(map[BodyHandle]*Body),
		windDir:   mgl32.Vec3{-1, 0, 0},
		enabled:   true,
		now:       time.Now,
	}
}

func (pd *Doc) Simulation() Simulation { return pd.sim }

func (pd *Doc) Shapes() *ShapeCache { return pd.shapes }

// Register arranges for f to provide the physics component of elements
// with the given tag.
func (pd *Doc) Register(tag string, f dom.ComponentFactory) {
	pd.factories[tag] = f
}

// Enable pauses or resumes the simulation. Bodies stay in the world while
// it is paused.
func (pd *Doc) Enable(enabled bool) {
	pd.enabled = enabled
	pd.last = pd.now()
}

func (pd *Doc) SetGravity(g mgl32.Vec3) {
	pd.sim.SetGravity(g)
}

func (pd *Doc) SetWind(speed float32, dir mgl32.Vec3) {
	pd.windSpeed = max(speed, 0)
	if dir.Len() > 0 {
		pd.windDir = dir.Normalize()
	}
}

func (pd *Doc) Wind() (float32, mgl32.Vec3) {
	return pd.windSpeed, pd.windDir
}

func (pd *Doc) OnAttached(d *dom.Document) {
	pd.last = pd.now()
}

func (pd *Doc) OnElementAdded(d *dom.Document, e *dom.Element) {
	if e.Component(ComponentName) != nil {
		return
	}

	switch tag := e.Tag(); {
	case tag == "Scene":
		e.Attach(ComponentName, &Scene{doc: pd})
	case slices.Contains(pd.opts.BodyTags, tag):
		e.Attach(ComponentName, &Body{doc: pd})
	default:
		if f, ok := pd.factories[tag]; ok {
			if c := f(e); c != nil {
				e.Attach(ComponentName, c)
			}
		}
	}
}

// OnElementRemoved takes the element's body out of the world before the
// element's other components see the removal.
func (pd *Doc) OnElementRemoved(d *dom.Document, e *dom.Element) {
	if b, ok := e.Component(ComponentName).(*Body); ok {
		b.unlink()
	}
	e.Detach(ComponentName)
}

func (pd *Doc) OnDocumentUpdate(d *dom.Document) {
	if !pd.enabled {
		return
	}
	now := pd.now()
	elapsed := float32(now.Sub(pd.last).Seconds())
	if elapsed < pd.opts.Step {
		return
	}
	pd.Advance(elapsed)
	pd.last = now
}

// Advance runs the simulation for elapsed seconds of wall time in fixed
// steps, then writes the results back to the document.
func (pd *Doc) Advance(elapsed float32) {
	n := int(elapsed * pd.opts.TimeScale / pd.opts.Step)
	n = max(1, min(n, pd.opts.MaxSubSteps))

	type pair struct{ a, b BodyHandle }
	seen := make(map[pair]bool)
	var contacts []Contact
	for range n {
		pd.applyWind(pd.opts.Step)
		for _, c := range pd.sim.Step(pd.opts.Step) {
			p := pair{min(c.A, c.B), max(c.A, c.B)}
			if !seen[p] {
				seen[p] = true
				contacts = append(contacts, c)
			}
		}
	}

	pd.writeBack()
	pd.collisionCallbacks(contacts)
}

func (pd *Doc) applyWind(dt float32) {
	if pd.windSpeed < 0.001 {
		return
	}
	air := pd.windDir.Mul(pd.windSpeed)
	for _, h := range pd.handles() {
		r := pd.sim.BoundingRadius(h)
		area := r * r * 0.66
		// Momentum of the air striking the body over dt.
		var impulse mgl32.Vec3
		for i := range 3 {
			impulse[i] = air[i] * math.Abs(air[i]) * airDensity * area * dt
		}
		pd.sim.ApplyImpulse(h, impulse)
	}
}

func (pd *Doc) handles() []BodyHandle {
	hs := make([]BodyHandle, 0, len(pd.bodies))
	for h := range pd.bodies {
		hs = append(hs, h)
	}
	slices.Sort(hs)
	return hs
}

func (pd *Doc) writeBack() {
	pd.writing = true
	defer func() { pd.writing = false }()

	for _, h := range pd.handles() {
		b := pd.bodies[h]
		pos, rot := pd.sim.Transform(h)
		b.elem.SetAttr("translation", pos)
		b.elem.SetAttr("rotation", rot)
	}
}

// collisionCallbacks calls onCollision on both elements of each contact,
// passing the other element. Contacts with the ground, which is not in
// the document, are skipped.
func (pd *Doc) collisionCallbacks(contacts []Contact) {
	for _, c := range contacts {
		a, b := pd.bodies[c.A], pd.bodies[c.B]
		if a == nil || b == nil {
			continue
		}
		a.elem.Call("onCollision", b.elem)
		b.elem.Call("onCollision", a.elem)
	}
}

// Close removes all of the bodies from the simulation.
func (pd *Doc) Close() {
	for _, h := range pd.handles() {
		pd.bodies[h].unlink()
	}
}
