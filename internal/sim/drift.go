// Package sim provides the authoritative world the server broadcasts and the
// fixed-timestep loop that advances it.
package sim

import (
	"fmt"
	"math/rand"

	"arenasync/internal/world"
)

// Stepper is a simulation that can be advanced and sampled.
type Stepper interface {
	Step(dt float64)
	Snapshot() world.Snapshot
}

// DriftConfig tunes the demo world.
type DriftConfig struct {
	Bodies int
	Seed   int64
	Width  float32
	Height float32
	// SoundEvery spawns a short-lived sound every n steps; zero disables.
	SoundEvery    int
	SoundLifetime int
}

func DefaultDriftConfig() DriftConfig {
	return DriftConfig{
		Bodies:        16,
		Seed:          1,
		Width:         800,
		Height:        600,
		SoundEvery:    30,
		SoundLifetime: 20,
	}
}

type body struct {
	id       world.EntityID
	collider world.EntityID
	state    world.RigidBody
}

type sound struct {
	id      world.EntityID
	state   world.Sound
	expires uint64
}

// Drift is a deterministic world of bodies bouncing inside a rectangle, with
// sounds that appear and disappear over time. The same seed produces the same
// sequence of snapshots.
type Drift struct {
	cfg    DriftConfig
	rng    *rand.Rand
	step   uint64
	bodies []body
	sounds []sound
	snap   world.Snapshot
	nextID uint64
}

func NewDrift(cfg DriftConfig) *Drift {
	defaults := DefaultDriftConfig()
	if cfg.Width <= 0 {
		cfg.Width = defaults.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = defaults.Height
	}
	if cfg.Bodies < 0 {
		cfg.Bodies = 0
	}
	if cfg.SoundLifetime <= 0 {
		cfg.SoundLifetime = defaults.SoundLifetime
	}

	d := &Drift{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		snap: world.NewSnapshot(cfg.Bodies * 2),
	}
	for i := 0; i < cfg.Bodies; i++ {
		d.spawnBody(i)
	}
	return d
}

func (d *Drift) allocID() world.EntityID {
	d.nextID++
	return world.EntityIDFromUint64(d.nextID)
}

func (d *Drift) spawnBody(i int) {
	owner := fmt.Sprintf("body-%d", i)
	b := body{id: d.allocID(), collider: d.allocID()}
	b.state = world.RigidBody{
		Position: world.Vec2{X: d.rng.Float32() * d.cfg.Width, Y: d.rng.Float32() * d.cfg.Height},
		Velocity: world.Vec2{X: (d.rng.Float32() - 0.5) * 120, Y: (d.rng.Float32() - 0.5) * 120},
		BodyType: world.BodyDynamic,
		Owner:    owner,
		Collider: b.collider,
	}
	if i%4 == 3 {
		// Every fourth body is static so deltas contain untouched entities.
		b.state.Velocity = world.Vec2{}
		b.state.BodyType = world.BodyFixed
	}
	d.bodies = append(d.bodies, b)
	d.snap.Set(b.id, b.state)
	d.snap.Set(b.collider, world.Collider{
		HalfX:           8,
		HalfY:           8,
		Restitution:     0.9,
		Mass:            1,
		Owner:           owner,
		CollisionGroups: 1,
		CollisionFilter: ^uint32(0),
	})
}

// Step advances the world by dt seconds.
func (d *Drift) Step(dt float64) {
	d.step++
	delta := float32(dt)
	for i := range d.bodies {
		b := &d.bodies[i]
		if b.state.BodyType == world.BodyFixed {
			continue
		}
		b.state.Position.X += b.state.Velocity.X * delta
		b.state.Position.Y += b.state.Velocity.Y * delta
		b.state.Position.X, b.state.Velocity.X = bounce(b.state.Position.X, b.state.Velocity.X, d.cfg.Width)
		b.state.Position.Y, b.state.Velocity.Y = bounce(b.state.Position.Y, b.state.Velocity.Y, d.cfg.Height)
		b.state.Rotation += b.state.AngularVelocity * delta
		d.snap.Set(b.id, b.state)
	}

	kept := d.sounds[:0]
	for _, s := range d.sounds {
		if s.expires <= d.step {
			d.snap.Delete(s.id)
			continue
		}
		kept = append(kept, s)
	}
	d.sounds = kept

	if d.cfg.SoundEvery > 0 && len(d.bodies) > 0 && d.step%uint64(d.cfg.SoundEvery) == 0 {
		source := d.bodies[d.rng.Intn(len(d.bodies))]
		s := sound{
			id: d.allocID(),
			state: world.Sound{
				Position: source.state.Position,
				Volume:   0.5 + d.rng.Float32()/2,
				Playing:  true,
				FilePath: "sfx/impact.ogg",
				Owner:    source.state.Owner,
			},
			expires: d.step + uint64(d.cfg.SoundLifetime),
		}
		d.sounds = append(d.sounds, s)
		d.snap.Set(s.id, s.state)
	}
}

func bounce(pos, vel, limit float32) (float32, float32) {
	switch {
	case pos < 0:
		return -pos, -vel
	case pos > limit:
		return 2*limit - pos, -vel
	default:
		return pos, vel
	}
}

// Snapshot returns a copy of the current world.
func (d *Drift) Snapshot() world.Snapshot {
	return d.snap.Clone()
}

// Steps reports how many times Step has run.
func (d *Drift) Steps() uint64 {
	return d.step
}
