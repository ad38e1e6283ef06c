package world

import "fmt"

// Kind tags an entity variant. The tag is written on the wire, so values are
// fixed.
type Kind uint8

const (
	KindRigidBody Kind = 1
	KindCollider  Kind = 2
	KindSound     Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindRigidBody:
		return "rigid_body"
	case KindCollider:
		return "collider"
	case KindSound:
		return "sound"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Entity is the closed set of serializable entity states. Implementations
// are value types, so a copy never shares memory with the original.
type Entity interface {
	Kind() Kind
	// Fields lists the field values in schema order.
	Fields() []Value
	// WithField returns a copy with field index replaced.
	WithField(index int, value Value) (Entity, error)
	isEntity()
}

// BodyType mirrors the physics engine's rigid body modes.
type BodyType uint8

const (
	BodyDynamic BodyType = iota
	BodyFixed
	BodyKinematicPosition
	BodyKinematicVelocity
)

// RigidBody captures the synchronized portion of a physics body.
type RigidBody struct {
	Position        Vec2
	Velocity        Vec2
	Rotation        float32
	AngularVelocity float32
	BodyType        BodyType
	Owner           string
	Collider        EntityID
}

// Field indices for RigidBody.
const (
	RigidBodyPosition = iota
	RigidBodyVelocity
	RigidBodyRotation
	RigidBodyAngularVelocity
	RigidBodyType
	RigidBodyOwner
	RigidBodyCollider
)

func (RigidBody) Kind() Kind { return KindRigidBody }
func (RigidBody) isEntity() {}

func (b RigidBody) Fields() []Value {
	return []Value{
		Vec2Value(b.Position),
		Vec2Value(b.Velocity),
		F32Value(b.Rotation),
		F32Value(b.AngularVelocity),
		U8Value(uint8(b.BodyType)),
		StringValue(b.Owner),
		IDValue(b.Collider),
	}
}

func (b RigidBody) WithField(index int, value Value) (Entity, error) {
	if err := checkField(KindRigidBody, index, value); err != nil {
		return nil, err
	}
	switch index {
	case RigidBodyPosition:
		b.Position = value.Vec2
	case RigidBodyVelocity:
		b.Velocity = value.Vec2
	case RigidBodyRotation:
		b.Rotation = value.F32
	case RigidBodyAngularVelocity:
		b.AngularVelocity = value.F32
	case RigidBodyType:
		if value.U8 > uint8(BodyKinematicVelocity) {
			return nil, fmt.Errorf("%s: unknown body type %d", KindRigidBody, value.U8)
		}
		b.BodyType = BodyType(value.U8)
	case RigidBodyOwner:
		b.Owner = value.Str
	case RigidBodyCollider:
		b.Collider = value.ID
	}
	return b, nil
}

// Collider captures the cuboid collider attached to a body.
type Collider struct {
	HalfX           float32
	HalfY           float32
	Restitution     float32
	Mass            float32
	Owner           string
	CollisionGroups uint32
	CollisionFilter uint32
}

// Field indices for Collider.
const (
	ColliderHalfX = iota
	ColliderHalfY
	ColliderRestitution
	ColliderMass
	ColliderOwner
	ColliderGroups
	ColliderFilter
)

func (Collider) Kind() Kind { return KindCollider }
func (Collider) isEntity() {}

func (c Collider) Fields() []Value {
	return []Value{
		F32Value(c.HalfX),
		F32Value(c.HalfY),
		F32Value(c.Restitution),
		F32Value(c.Mass),
		StringValue(c.Owner),
		U32Value(c.CollisionGroups),
		U32Value(c.CollisionFilter),
	}
}

func (c Collider) WithField(index int, value Value) (Entity, error) {
	if err := checkField(KindCollider, index, value); err != nil {
		return nil, err
	}
	switch index {
	case ColliderHalfX:
		c.HalfX = value.F32
	case ColliderHalfY:
		c.HalfY = value.F32
	case ColliderRestitution:
		c.Restitution = value.F32
	case ColliderMass:
		c.Mass = value.F32
	case ColliderOwner:
		c.Owner = value.Str
	case ColliderGroups:
		c.CollisionGroups = value.U32
	case ColliderFilter:
		c.CollisionFilter = value.U32
	}
	return c, nil
}

// Sound is a positional sound handle replicated so every peer plays it.
type Sound struct {
	Position Vec2
	Volume   float32
	Playing  bool
	FilePath string
	Owner    string
}

// Field indices for Sound.
const (
	SoundPosition = iota
	SoundVolume
	SoundPlaying
	SoundFilePath
	SoundOwner
)

func (Sound) Kind() Kind { return KindSound }
func (Sound) isEntity() {}

func (s Sound) Fields() []Value {
	return []Value{
		Vec2Value(s.Position),
		F32Value(s.Volume),
		BoolValue(s.Playing),
		StringValue(s.FilePath),
		StringValue(s.Owner),
	}
}

func (s Sound) WithField(index int, value Value) (Entity, error) {
	if err := checkField(KindSound, index, value); err != nil {
		return nil, err
	}
	switch index {
	case SoundPosition:
		s.Position = value.Vec2
	case SoundVolume:
		s.Volume = value.F32
	case SoundPlaying:
		s.Playing = value.Bool
	case SoundFilePath:
		s.FilePath = value.Str
	case SoundOwner:
		s.Owner = value.Str
	}
	return s, nil
}

var schemas = map[Kind][]ValueType{
	KindRigidBody: {ValueVec2, ValueVec2, ValueF32, ValueF32, ValueU8, ValueString, ValueID},
	KindCollider:  {ValueF32, ValueF32, ValueF32, ValueF32, ValueString, ValueU32, ValueU32},
	KindSound:     {ValueVec2, ValueF32, ValueBool, ValueString, ValueString},
}

// Schema returns the field types of kind in index order, or false for an
// unknown kind.
func Schema(kind Kind) ([]ValueType, bool) {
	schema, ok := schemas[kind]
	return schema, ok
}

// Zero returns the zero-valued entity of kind.
func Zero(kind Kind) (Entity, bool) {
	switch kind {
	case KindRigidBody:
		return RigidBody{}, true
	case KindCollider:
		return Collider{}, true
	case KindSound:
		return Sound{}, true
	default:
		return nil, false
	}
}

// FromFields builds an entity of kind from a full field list.
func FromFields(kind Kind, values []Value) (Entity, error) {
	entity, ok := Zero(kind)
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %d", uint8(kind))
	}
	schema := schemas[kind]
	if len(values) != len(schema) {
		return nil, fmt.Errorf("%s: expected %d fields, got %d", kind, len(schema), len(values))
	}
	var err error
	for i, value := range values {
		entity, err = entity.WithField(i, value)
		if err != nil {
			return nil, err
		}
	}
	return entity, nil
}

func checkField(kind Kind, index int, value Value) error {
	schema := schemas[kind]
	if index < 0 || index >= len(schema) {
		return fmt.Errorf("%s: field index %d out of range", kind, index)
	}
	if schema[index] != value.Type {
		return fmt.Errorf("%s: field %d expects %s, got %s", kind, index, schema[index], value.Type)
	}
	return nil
}
