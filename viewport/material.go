package viewport

// MaterialConfig is a fully resolved physically based material.
type MaterialConfig struct {
	Color             Color
	Roughness         float32
	Metalness         float32
	Opacity           float32
	Transparent       bool
	Emissive          Color
	EmissiveIntensity float32
}

// FallbackMaterial is used for objects that carry no material at all.
var FallbackMaterial = MaterialConfig{
	Color:             ColorFromHex(0x808080),
	Roughness:         0.5,
	Metalness:         0.5,
	Opacity:           1,
	EmissiveIntensity: 1,
}

// Resolve fills absent fields with defaults: color 0.8 gray, roughness 0.5,
// metalness 0, opacity 1, black emissive at intensity 1.
func (d MaterialDescription) Resolve() MaterialConfig {
	cfg := MaterialConfig{
		Color:             Color{R: 0.8, G: 0.8, B: 0.8},
		Roughness:         0.5,
		Metalness:         0,
		Opacity:           1,
		EmissiveIntensity: 1,
	}
	if d.Color != nil {
		cfg.Color = ColorFromTriple(*d.Color)
	}
	if d.Roughness != nil {
		cfg.Roughness = *d.Roughness
	}
	if d.Metalness != nil {
		cfg.Metalness = *d.Metalness
	}
	if d.Opacity != nil {
		cfg.Opacity = *d.Opacity
	}
	cfg.Transparent = cfg.Opacity < 1
	if d.Emissive != nil {
		cfg.Emissive = ColorFromTriple(*d.Emissive)
	}
	if d.EmissiveIntensity != nil {
		cfg.EmissiveIntensity = *d.EmissiveIntensity
	}
	return cfg
}

// Material is a material handle attached to a mesh.
type Material struct {
	MaterialConfig

	disposed bool
	release  func()
}

// Disposed reports whether Dispose has been called.
func (m *Material) Disposed() bool {
	return m.disposed
}

// Dispose releases the material. A second call returns ErrDisposed.
func (m *Material) Dispose() error {
	if m.disposed {
		return ErrDisposed
	}
	m.disposed = true
	if m.release != nil {
		m.release()
	}
	return nil
}

// BuildMaterial creates a material handle. A nil description selects
// FallbackMaterial.
func BuildMaterial(desc *MaterialDescription) *Material {
	if desc == nil {
		return &Material{MaterialConfig: FallbackMaterial}
	}
	return &Material{MaterialConfig: desc.Resolve()}
}
