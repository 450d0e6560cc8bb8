package viewport

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// LightKind is the viewport light variant a description maps onto.
type LightKind string

const (
	PointLight       LightKind = "point"
	DirectionalLight LightKind = "directional"
	SpotLight        LightKind = "spot"
	RectAreaLight    LightKind = "rect_area"
	AmbientLight     LightKind = "ambient"
)

// PhysicalDecay is the falloff exponent used by point and spot lights.
const PhysicalDecay = 2.0

const (
	defaultSpotAngle    = math.Pi / 4
	defaultSpotPenumbra = 0.15
	defaultAmbient      = 0.5
)

// LightConfig is a fully resolved light. Fields not used by a kind are zero.
type LightConfig struct {
	Variant    LightKind
	Color      Color
	Intensity  float32
	Distance   float32
	Angle      float32
	Penumbra   float32
	Decay      float32
	Width      float32
	Height     float32
	CastShadow bool
}

// Resolve maps a description onto a viewport light. Unknown types,
// including lowercase spellings, become ambient lights.
func (d LightDescription) Resolve() LightConfig {
	cfg := LightConfig{Color: Color{R: 1, G: 1, B: 1}, Intensity: 1}
	if d.Color != nil {
		cfg.Color = ColorFromTriple(*d.Color)
	}
	if d.Intensity != nil {
		cfg.Intensity = *d.Intensity
	}

	switch d.Type {
	case LightPoint:
		cfg.Variant = PointLight
		cfg.Decay = PhysicalDecay
	case LightSun, LightDirectional:
		cfg.Variant = DirectionalLight
		cfg.CastShadow = d.CastShadow
	case LightSpot:
		cfg.Variant = SpotLight
		cfg.Distance = d.Distance
		cfg.Angle = orDefault(d.SpotSize, defaultSpotAngle)
		cfg.Penumbra = orDefault(d.SpotBlend, defaultSpotPenumbra)
		cfg.Decay = PhysicalDecay
		cfg.CastShadow = d.CastShadow
	case LightArea:
		cfg.Variant = RectAreaLight
		cfg.Width = orDefault(d.Size, 1)
		cfg.Height = orDefault(d.SizeY, 1)
	default:
		cfg.Variant = AmbientLight
		cfg.Intensity = defaultAmbient
		if d.Intensity != nil && *d.Intensity != 0 {
			cfg.Intensity = *d.Intensity
		}
	}
	return cfg
}

func orDefault(v, def float32) float32 {
	if v == 0 {
		return def
	}
	return v
}

// Light is a light node in the render scene.
type Light struct {
	LightConfig
	Name     string
	Position mgl32.Vec3
}

func (l *Light) NodeName() string { return l.Name }
func (l *Light) Kind() NodeKind   { return KindLight }

// BuildLight creates a light node positioned in the viewport convention.
func BuildLight(desc LightDescription) *Light {
	light := &Light{
		LightConfig: desc.Resolve(),
		Name:        desc.Name,
	}
	if desc.Position != nil {
		light.Position = ToVector(*desc.Position)
	}
	return light
}
