package viewport

import "fmt"

// MeshDescription is raw mesh data as exported by the authoring application.
// Vertices and Normals are flat xyz buffers in the external convention.
type MeshDescription struct {
	Vertices []float32 `json:"vertices"`
	Faces    []int     `json:"faces"`
	Normals  []float32 `json:"normals,omitempty"`
	UVs      []float32 `json:"uvs,omitempty"`
}

// VertexCount returns the number of vertices.
func (m MeshDescription) VertexCount() int {
	return len(m.Vertices) / 3
}

// Validate checks buffer lengths and face indices.
func (m MeshDescription) Validate() error {
	var errors ValidationErrors

	if len(m.Vertices)%3 != 0 {
		errors = append(errors, fmt.Sprintf("vertices length %d is not a multiple of 3", len(m.Vertices)))
	}
	if len(m.Normals) > 0 && len(m.Normals) != len(m.Vertices) {
		errors = append(errors, fmt.Sprintf("normals length %d does not match vertices length %d", len(m.Normals), len(m.Vertices)))
	}
	if len(m.UVs)%2 != 0 {
		errors = append(errors, fmt.Sprintf("uvs length %d is not a multiple of 2", len(m.UVs)))
	}
	if len(m.Faces)%3 != 0 {
		errors = append(errors, fmt.Sprintf("faces length %d is not a multiple of 3", len(m.Faces)))
	}

	count := m.VertexCount()
	for i, idx := range m.Faces {
		if idx < 0 || idx >= count {
			errors = append(errors, fmt.Sprintf("face index %d at position %d is out of range [0,%d)", idx, i, count))
			break
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// MaterialDescription is a principled material. Absent fields take defaults
// when resolved.
type MaterialDescription struct {
	Color             *Triple  `json:"color,omitempty"`
	Roughness         *float32 `json:"roughness,omitempty"`
	Metalness         *float32 `json:"metalness,omitempty"`
	Opacity           *float32 `json:"opacity,omitempty"`
	Emissive          *Triple  `json:"emissive,omitempty"`
	EmissiveIntensity *float32 `json:"emissiveIntensity,omitempty"`
}

// LightType tags a light description. Matching is exact and case-sensitive.
type LightType string

const (
	LightPoint       LightType = "POINT"
	LightSun         LightType = "SUN"
	LightDirectional LightType = "DIRECTIONAL"
	LightSpot        LightType = "SPOT"
	LightArea        LightType = "AREA"
)

// LightDescription is a light as exported by the authoring application.
// Zero values of Distance, SpotSize, SpotBlend, Size and SizeY select the
// per-type default.
type LightDescription struct {
	Type       LightType `json:"type"`
	Color      *Triple   `json:"color,omitempty"`
	Intensity  *float32  `json:"intensity,omitempty"`
	Position   *Triple   `json:"position,omitempty"`
	Distance   float32   `json:"distance,omitempty"`
	SpotSize   float32   `json:"spotSize,omitempty"`
	SpotBlend  float32   `json:"spotBlend,omitempty"`
	Size       float32   `json:"size,omitempty"`
	SizeY      float32   `json:"sizeY,omitempty"`
	CastShadow bool      `json:"castShadow,omitempty"`
	Name       string    `json:"name,omitempty"`
}

// ObjectDescription is one mesh object with its transform.
type ObjectDescription struct {
	Mesh     *MeshDescription     `json:"mesh"`
	Material *MaterialDescription `json:"material,omitempty"`
	Position *Triple              `json:"position,omitempty"`
	Rotation *Triple              `json:"rotation,omitempty"`
	Scale    *Triple              `json:"scale,omitempty"`
	Name     string               `json:"name,omitempty"`
}

// Snapshot is a complete scene. Applying it replaces everything rendered
// before; nil Objects or Lights mean none.
type Snapshot struct {
	Objects    []ObjectDescription `json:"objects,omitempty"`
	Lights     []LightDescription  `json:"lights,omitempty"`
	Background *Triple             `json:"background,omitempty"`
}
