package viewport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// Color is a linear RGB color with components in [0,1].
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
}

// ColorFromTriple builds a Color from an (r, g, b) triple.
func ColorFromTriple(t Triple) Color {
	return Color{R: t[0], G: t[1], B: t[2]}
}

// ColorFromHex builds a Color from a 0xRRGGBB value.
func ColorFromHex(hex uint32) Color {
	return Color{
		R: float32((hex>>16)&0xff) / 255,
		G: float32((hex>>8)&0xff) / 255,
		B: float32(hex&0xff) / 255,
	}
}

// NodeKind distinguishes the node variants held by a Scene.
type NodeKind string

const (
	KindMesh  NodeKind = "mesh"
	KindLight NodeKind = "light"
)

// Node is a child of the render scene. Implemented by *Mesh and *Light.
type Node interface {
	NodeName() string
	Kind() NodeKind
}

// Mesh is a renderable object: geometry, material and a Y-up transform.
type Mesh struct {
	Name       string
	Geometry   *Geometry
	Material   *Material
	Position   mgl32.Vec3
	Rotation   Euler
	Quaternion mgl32.Quat
	Scale      mgl32.Vec3
}

func (m *Mesh) NodeName() string { return m.Name }
func (m *Mesh) Kind() NodeKind   { return KindMesh }

// Resources counts geometry and material handles attached to a scene and
// not yet disposed.
type Resources struct {
	Geometries int64 `json:"geometries"`
	Materials  int64 `json:"materials"`
}

// Scene is the render scene graph kept in sync with the authoring
// application.
type Scene struct {
	mu         sync.RWMutex
	children   []Node
	background *Color

	liveGeometries atomic.Int64
	liveMaterials  atomic.Int64
}

// NewScene creates an empty scene with no background.
func NewScene() *Scene {
	return &Scene{}
}

// Add attaches a node. Mesh resources are tracked until disposed.
func (s *Scene) Add(n Node) {
	if mesh, ok := n.(*Mesh); ok {
		s.track(mesh)
	}

	s.mu.Lock()
	s.children = append(s.children, n)
	s.mu.Unlock()
}

func (s *Scene) track(mesh *Mesh) {
	if g := mesh.Geometry; g != nil && !g.disposed && g.release == nil {
		s.liveGeometries.Add(1)
		g.release = func() { s.liveGeometries.Add(-1) }
	}
	if m := mesh.Material; m != nil && !m.disposed && m.release == nil {
		s.liveMaterials.Add(1)
		m.release = func() { s.liveMaterials.Add(-1) }
	}
}

// Remove detaches a node without releasing its resources.
func (s *Scene) Remove(n Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, child := range s.children {
		if child == n {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps in children and, when bg is non-nil, the background in one
// step, then disposes the previous children's handles once each. Readers
// see either the old scene or the new one.
func (s *Scene) Replace(children []Node, bg *Color) error {
	for _, n := range children {
		if mesh, ok := n.(*Mesh); ok {
			s.track(mesh)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.children
	s.children = append([]Node(nil), children...)
	if bg != nil {
		c := *bg
		s.background = &c
	}
	return dispose(previous)
}

// dispose releases the geometry and material of each mesh, skipping
// handles shared with a mesh already seen.
func dispose(nodes []Node) error {
	geometries := make(map[*Geometry]bool)
	materials := make(map[*Material]bool)

	var errs []error
	for _, n := range nodes {
		mesh, ok := n.(*Mesh)
		if !ok {
			continue
		}
		if g := mesh.Geometry; g != nil && !geometries[g] {
			geometries[g] = true
			if err := g.Dispose(); err != nil {
				errs = append(errs, fmt.Errorf("geometry of %q: %w", mesh.Name, err))
			}
		}
		if m := mesh.Material; m != nil && !materials[m] {
			materials[m] = true
			if err := m.Dispose(); err != nil {
				errs = append(errs, fmt.Errorf("material of %q: %w", mesh.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Children returns a copy of the attached nodes in insertion order.
func (s *Scene) Children() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Node, len(s.children))
	copy(out, s.children)
	return out
}

// Len returns the number of attached nodes.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.children)
}

// Background returns the background color, if one was set.
func (s *Scene) Background() (Color, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.background == nil {
		return Color{}, false
	}
	return *s.background, true
}

// SetBackground replaces the background color.
func (s *Scene) SetBackground(c Color) {
	s.mu.Lock()
	s.background = &c
	s.mu.Unlock()
}

// Live reports the attached handles that have not been disposed.
func (s *Scene) Live() Resources {
	return Resources{
		Geometries: s.liveGeometries.Load(),
		Materials:  s.liveMaterials.Load(),
	}
}

// Summary describes the scene for status displays.
type Summary struct {
	Objects    int      `json:"objects"`
	Lights     int      `json:"lights"`
	Vertices   int      `json:"vertices"`
	Triangles  int      `json:"triangles"`
	Names      []string `json:"names"`
	Background *Color   `json:"background,omitempty"`
}

// Summary counts the scene's objects, lights and geometry.
func (s *Scene) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := Summary{Names: []string{}}
	for _, child := range s.children {
		if name := child.NodeName(); name != "" {
			summary.Names = append(summary.Names, name)
		}
		switch n := child.(type) {
		case *Mesh:
			summary.Objects++
			if n.Geometry != nil {
				summary.Vertices += n.Geometry.VertexCount()
				summary.Triangles += n.Geometry.TriangleCount()
			}
		case *Light:
			summary.Lights++
		}
	}
	if s.background != nil {
		bg := *s.background
		summary.Background = &bg
	}
	return summary
}
