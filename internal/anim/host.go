// Package anim samples skeletal, morph and pose animations from a host scene
// into keyframe tracks.
package anim

import (
	"go.uber.org/multierr"

	"github.com/Faultbox/meshexport/pkg/math"
)

// Host is the scene evaluation state animations are sampled from.
// Sampling changes the current frame and active actions; callers get them
// back through a Context.
type Host interface {
	FPS() float64
	Frame() int
	SetFrame(frame int)
	ActiveAction(object string) string
	SetActiveAction(object, action string) error

	// ActionBones lists the bones an action keys.
	ActionBones(action string) ([]string, error)
	// PoseMatrix is the evaluated bone transform in armature space.
	PoseMatrix(object, bone string) (math.Mat4, error)
	ShapeKeyInfluence(object, key string) (float64, error)
	// DeformedPositions are the object's vertex positions with shape keys
	// applied, indexed like the source mesh.
	DeformedPositions(object string) ([]math.Vec3, error)
}

// Context holds the host state saved before sampling an object.
type Context struct {
	host     Host
	objects  []string
	frame    int
	actions  map[string]string
	released bool
}

// Acquire saves the current frame and the active action of each object.
// Release must be called on every path, usually deferred.
func Acquire(h Host, objects ...string) *Context {
	c := &Context{
		host:    h,
		objects: objects,
		frame:   h.Frame(),
		actions: make(map[string]string, len(objects)),
	}
	for _, o := range objects {
		c.actions[o] = h.ActiveAction(o)
	}
	return c
}

// Release restores the saved state. Calling it again is a no-op.
func (c *Context) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	var err error
	for _, o := range c.objects {
		err = multierr.Append(err, c.host.SetActiveAction(o, c.actions[o]))
	}
	c.host.SetFrame(c.frame)
	return err
}
