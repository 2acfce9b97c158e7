// Package camera implements the camera registry (C2): a small upsert-only
// map from camera id to its calibrated 3-D position and focal length, plus
// the fixed vision-frame to field-frame coordinate conversion.
package camera

import (
	"sort"

	"github.com/robocin/framework/internal/geom"
)

// Vec3 is a 3-D point, used only for camera world positions.
type Vec3 struct {
	X, Y, Z float64
}

// Camera is the calibration record for a single vision camera (§3).
type Camera struct {
	ID          int
	Position    Vec3
	FocalLength float64
}

// Registry maps camera id to its calibration record. Cameras are upserted
// on every geometry/calibration message and are never deleted (§4.1). The
// zero value is ready to use.
type Registry struct {
	cameras map[int]Camera
	Flip    bool
}

// NewRegistry constructs an empty camera registry.
func NewRegistry() *Registry {
	return &Registry{cameras: make(map[int]Camera)}
}

// Upsert inserts or replaces the calibration record for cam.ID.
func (r *Registry) Upsert(cam Camera) {
	if r.cameras == nil {
		r.cameras = make(map[int]Camera)
	}
	r.cameras[cam.ID] = cam
}

// Has reports whether calibration has been seen for id.
func (r *Registry) Has(id int) bool {
	_, ok := r.cameras[id]
	return ok
}

// Position returns the 3-D world position of camera id and whether it is
// known.
func (r *Registry) Position(id int) (Vec3, bool) {
	cam, ok := r.cameras[id]
	if !ok {
		return Vec3{}, false
	}
	return cam.Position, true
}

// Camera returns the full calibration record for id, if known.
func (r *Registry) Camera(id int) (Camera, bool) {
	cam, ok := r.cameras[id]
	return cam, ok
}

// Count returns the number of calibrated cameras.
func (r *Registry) Count() int { return len(r.cameras) }

// All returns every calibrated camera, ordered by id.
func (r *Registry) All() []Camera {
	cams := make([]Camera, 0, len(r.cameras))
	for _, c := range r.cameras {
		cams = append(cams, c)
	}
	sort.Slice(cams, func(i, j int) bool { return cams[i].ID < cams[j].ID })
	return cams
}

// VisionToField converts a raw vision-frame coordinate (millimeters,
// SSL-rotated axes) to a field-frame coordinate (meters), applying the
// registry's flip setting (§4.1).
func (r *Registry) VisionToField(xVisionMM, yVisionMM float64) geom.Vec2 {
	x := -yVisionMM / 1000.0
	y := xVisionMM / 1000.0
	if r.Flip {
		x, y = -x, -y
	}
	return geom.Vec2{X: x, Y: y}
}
