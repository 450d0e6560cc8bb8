package viewport

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// errNoMesh is returned for object descriptions without mesh data.
var errNoMesh = errors.New("object has no mesh data")

// BuildObject creates a mesh node with its transform converted to the
// viewport convention.
func BuildObject(desc ObjectDescription) (*Mesh, error) {
	if desc.Mesh == nil {
		return nil, errNoMesh
	}

	geometry, err := BuildGeometry(*desc.Mesh)
	if err != nil {
		return nil, err
	}

	mesh := &Mesh{
		Name:       desc.Name,
		Geometry:   geometry,
		Material:   BuildMaterial(desc.Material),
		Rotation:   Euler{Order: mgl32.ZYX},
		Quaternion: mgl32.QuatIdent(),
		Scale:      mgl32.Vec3{1, 1, 1},
	}
	if desc.Position != nil {
		mesh.Position = ToVector(*desc.Position)
	}
	if desc.Rotation != nil {
		mesh.Rotation = ToEuler(*desc.Rotation)
		mesh.Quaternion = mesh.Rotation.Quat()
	}
	if desc.Scale != nil {
		mesh.Scale = ToScale(*desc.Scale)
	}
	return mesh, nil
}

// SyncState is the synchronizer's lifecycle state.
type SyncState int

const (
	// Idle means no snapshot has been applied yet.
	Idle SyncState = iota
	// Synced means the scene mirrors the last applied snapshot.
	Synced
)

func (s SyncState) String() string {
	if s == Synced {
		return "synced"
	}
	return "idle"
}

// Synchronizer owns a Scene and replaces its contents with each snapshot.
type Synchronizer struct {
	mu      sync.Mutex
	scene   *Scene
	state   SyncState
	applied int
	logger  *log.Logger
}

// NewSynchronizer creates a synchronizer for scene. A nil logger uses
// log.Default().
func NewSynchronizer(scene *Scene, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synchronizer{scene: scene, logger: logger}
}

// Scene returns the owned scene.
func (s *Synchronizer) Scene() *Scene {
	return s.scene
}

// State returns Idle until the first Apply.
func (s *Synchronizer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Applied returns how many snapshots have been applied.
func (s *Synchronizer) Applied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// Apply builds the snapshot's objects and lights, then swaps them into the
// scene, releasing every previous geometry and material once. Objects that
// fail to build are skipped; the returned error joins one *ObjectError per
// skipped object.
func (s *Synchronizer) Apply(snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make([]Node, 0, len(snapshot.Objects)+len(snapshot.Lights))
	var errs []error
	for i, desc := range snapshot.Objects {
		mesh, err := BuildObject(desc)
		if err != nil {
			s.logger.Printf("skipping object %d (%s): %v", i, desc.Name, err)
			errs = append(errs, &ObjectError{Index: i, Name: desc.Name, Err: err})
			continue
		}
		nodes = append(nodes, mesh)
	}

	for _, desc := range snapshot.Lights {
		nodes = append(nodes, BuildLight(desc))
	}

	var bg *Color
	if snapshot.Background != nil {
		c := ColorFromTriple(*snapshot.Background)
		bg = &c
	}

	if err := s.scene.Replace(nodes, bg); err != nil {
		s.logger.Printf("releasing previous scene: %v", err)
	}

	s.state = Synced
	s.applied++
	return errors.Join(errs...)
}

// Describe is a one-line account of the scene for logs.
func (s *Synchronizer) Describe() string {
	summary := s.scene.Summary()
	return fmt.Sprintf("%d objects, %d lights, %d vertices", summary.Objects, summary.Lights, summary.Vertices)
}
