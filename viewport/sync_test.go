package viewport

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func triangle(name string) ObjectDescription {
	return ObjectDescription{
		Name: name,
		Mesh: &MeshDescription{
			Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
			Faces:    []int{0, 1, 2},
		},
	}
}

func TestSynchronizerStartsIdle(t *testing.T) {
	s := NewSynchronizer(NewScene(), quietLogger())
	if s.State() != Idle {
		t.Errorf("Expected idle, got %s", s.State())
	}
}

func TestApplyReplacesScene(t *testing.T) {
	scene := NewScene()
	s := NewSynchronizer(scene, quietLogger())

	a := Snapshot{
		Objects: []ObjectDescription{triangle("a1"), triangle("a2"), triangle("a3")},
		Lights:  []LightDescription{{Type: LightPoint}},
	}
	if err := s.Apply(a); err != nil {
		t.Fatalf("Apply(A) returned error: %v", err)
	}

	var handlesA []*Mesh
	for _, child := range scene.Children() {
		if mesh, ok := child.(*Mesh); ok {
			handlesA = append(handlesA, mesh)
		}
	}
	if len(handlesA) != 3 {
		t.Fatalf("Expected 3 meshes after A, got %d", len(handlesA))
	}

	b := Snapshot{
		Objects: []ObjectDescription{triangle("b1")},
		Lights:  []LightDescription{{Type: LightSun}, {Type: LightSpot}},
	}
	if err := s.Apply(b); err != nil {
		t.Fatalf("Apply(B) returned error: %v", err)
	}

	if scene.Len() != len(b.Objects)+len(b.Lights) {
		t.Errorf("Expected %d nodes, got %d", len(b.Objects)+len(b.Lights), scene.Len())
	}
	for _, mesh := range handlesA {
		if !mesh.Geometry.Disposed() || !mesh.Material.Disposed() {
			t.Errorf("Expected resources of %s to be disposed", mesh.Name)
		}
	}

	live := scene.Live()
	if live.Geometries != 1 || live.Materials != 1 {
		t.Errorf("Expected 1 live geometry and material, got %+v", live)
	}
	if s.State() != Synced || s.Applied() != 2 {
		t.Errorf("Expected synced after 2 applies, got %s after %d", s.State(), s.Applied())
	}
}

func TestApplyMissingCategoriesClearScene(t *testing.T) {
	scene := NewScene()
	s := NewSynchronizer(scene, quietLogger())

	if err := s.Apply(Snapshot{Objects: []ObjectDescription{triangle("x")}}); err != nil {
		t.Fatalf("Apply() returned error: %v", err)
	}
	if err := s.Apply(Snapshot{}); err != nil {
		t.Fatalf("Apply() returned error: %v", err)
	}

	if scene.Len() != 0 {
		t.Errorf("Expected empty scene, got %d nodes", scene.Len())
	}
	if live := scene.Live(); live.Geometries != 0 || live.Materials != 0 {
		t.Errorf("Expected no live resources, got %+v", live)
	}
}

func TestApplySharedMaterialDisposedOnce(t *testing.T) {
	scene := NewScene()
	s := NewSynchronizer(scene, quietLogger())

	shared := BuildMaterial(nil)
	g1, _ := BuildGeometry(MeshDescription{})
	g2, _ := BuildGeometry(MeshDescription{})
	scene.Add(&Mesh{Name: "one", Geometry: g1, Material: shared})
	scene.Add(&Mesh{Name: "two", Geometry: g2, Material: shared})

	if err := s.Apply(Snapshot{}); err != nil {
		t.Fatalf("Apply() returned error: %v", err)
	}
	if !shared.Disposed() {
		t.Error("Expected shared material to be disposed")
	}
	if live := scene.Live(); live.Materials != 0 {
		t.Errorf("Expected 0 live materials, got %d", live.Materials)
	}
}

func TestApplySkipsMalformedObjects(t *testing.T) {
	scene := NewScene()
	s := NewSynchronizer(scene, quietLogger())

	bad := ObjectDescription{Name: "broken", Mesh: &MeshDescription{Vertices: []float32{0, 0}}}
	snapshot := Snapshot{
		Objects: []ObjectDescription{triangle("ok1"), bad, {Name: "meshless"}, triangle("ok2")},
		Lights:  []LightDescription{{Type: LightPoint}},
	}

	err := s.Apply(snapshot)
	if err == nil {
		t.Fatal("Expected an error describing the skipped objects")
	}
	if !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("Expected error to match ErrMalformedGeometry, got %v", err)
	}

	var objErr *ObjectError
	if !errors.As(err, &objErr) || objErr.Index != 1 || objErr.Name != "broken" {
		t.Errorf("Expected ObjectError for index 1, got %v", err)
	}

	if scene.Len() != 3 {
		t.Errorf("Expected 2 objects and 1 light, got %d nodes", scene.Len())
	}
	if s.State() != Synced {
		t.Errorf("Expected synced, got %s", s.State())
	}
}

func TestApplyTransformsAndBackground(t *testing.T) {
	scene := NewScene()
	s := NewSynchronizer(scene, quietLogger())

	obj := triangle("moved")
	obj.Position = &Triple{1, 2, 3}
	obj.Scale = &Triple{2, 3, 4}
	obj.Rotation = &Triple{0.1, 0.2, 0.3}

	if err := s.Apply(Snapshot{Objects: []ObjectDescription{obj}, Background: &Triple{0.1, 0.2, 0.3}}); err != nil {
		t.Fatalf("Apply() returned error: %v", err)
	}

	mesh := scene.Children()[0].(*Mesh)
	if mesh.Position != (mgl32.Vec3{1, 3, -2}) {
		t.Errorf("Expected position (1,3,-2), got %v", mesh.Position)
	}
	if mesh.Scale != (mgl32.Vec3{2, 4, 3}) {
		t.Errorf("Expected scale (2,4,3), got %v", mesh.Scale)
	}
	if mesh.Rotation.X != 0.1 || mesh.Rotation.Y != 0.3 || mesh.Rotation.Z != -0.2 {
		t.Errorf("Expected rotation (0.1,0.3,-0.2), got %+v", mesh.Rotation)
	}

	bg, ok := scene.Background()
	if !ok || bg != (Color{R: 0.1, G: 0.2, B: 0.3}) {
		t.Errorf("Expected background (0.1,0.2,0.3), got %+v (set=%v)", bg, ok)
	}
}

func TestSnapshotFromJSON(t *testing.T) {
	payload := `{
		"objects": [{
			"name": "Cube",
			"mesh": {"vertices": [0,0,0, 1,0,0, 0,1,0], "faces": [0,1,2]},
			"material": {"color": [1,0,0], "emissiveIntensity": 2},
			"position": [1,2,3]
		}],
		"lights": [{"type": "SPOT", "spotSize": 0.5, "castShadow": true}],
		"background": [0.2, 0.2, 0.2]
	}`

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	s := NewSynchronizer(NewScene(), quietLogger())
	if err := s.Apply(snapshot); err != nil {
		t.Fatalf("Apply() returned error: %v", err)
	}

	summary := s.Scene().Summary()
	if summary.Objects != 1 || summary.Lights != 1 || summary.Triangles != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if len(summary.Names) != 1 || summary.Names[0] != "Cube" {
		t.Errorf("Expected names [Cube], got %v", summary.Names)
	}

	light := s.Scene().Children()[1].(*Light)
	if light.Angle != 0.5 || !light.CastShadow {
		t.Errorf("Expected spot angle 0.5 with shadows, got %+v", light.LightConfig)
	}
}

func TestApplyConcurrentWithSummary(t *testing.T) {
	s := NewSynchronizer(NewScene(), quietLogger())

	a := Snapshot{
		Objects: []ObjectDescription{triangle("a1")},
		Lights:  []LightDescription{{Type: LightPoint}},
	}
	b := Snapshot{
		Objects: []ObjectDescription{triangle("b1"), triangle("b2")},
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 200; i++ {
			snap := a
			if i%2 == 1 {
				snap = b
			}
			if err := s.Apply(snap); err != nil {
				t.Errorf("Apply() returned error: %v", err)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			wg.Wait()
			return
		default:
		}

		summary := s.Scene().Summary()
		switch {
		case summary.Objects == 0 && summary.Lights == 0:
		case summary.Objects == 1 && summary.Lights == 1 && summary.Vertices == 3:
		case summary.Objects == 2 && summary.Lights == 0 && summary.Vertices == 6:
		default:
			t.Fatalf("Summary saw a partial scene: %+v", summary)
		}
	}
}

func TestSceneReplaceDisposesPrevious(t *testing.T) {
	scene := NewScene()

	g, _ := BuildGeometry(MeshDescription{Vertices: []float32{0, 0, 0}})
	old := &Mesh{Name: "old", Geometry: g, Material: BuildMaterial(nil)}
	if err := scene.Replace([]Node{old}, nil); err != nil {
		t.Fatalf("Replace() returned error: %v", err)
	}
	if live := scene.Live(); live.Geometries != 1 || live.Materials != 1 {
		t.Fatalf("Expected 1/1 live handles, got %+v", live)
	}

	bg := ColorFromHex(0x000000)
	if err := scene.Replace([]Node{BuildLight(LightDescription{Type: LightSun})}, &bg); err != nil {
		t.Fatalf("Replace() returned error: %v", err)
	}
	if !old.Geometry.Disposed() || !old.Material.Disposed() {
		t.Error("Expected previous handles to be disposed")
	}
	if live := scene.Live(); live.Geometries != 0 || live.Materials != 0 {
		t.Errorf("Expected no live handles, got %+v", live)
	}
	if _, ok := scene.Background(); !ok {
		t.Error("Expected background to be set")
	}

	if err := scene.Replace(nil, nil); err != nil {
		t.Fatalf("Replace() returned error: %v", err)
	}
	if _, ok := scene.Background(); !ok {
		t.Error("Expected a nil background to keep the current one")
	}
}

func TestSceneReplaceReportsDoubleDispose(t *testing.T) {
	scene := NewScene()

	g, _ := BuildGeometry(MeshDescription{Vertices: []float32{0, 0, 0}})
	scene.Replace([]Node{&Mesh{Name: "cube", Geometry: g}}, nil)
	g.Dispose()

	if err := scene.Replace(nil, nil); !errors.Is(err, ErrDisposed) {
		t.Errorf("Expected ErrDisposed, got %v", err)
	}
}
