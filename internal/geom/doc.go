// Package geom provides the pure 2-D vector, segment, rectangle and
// triangle primitives shared by the vision fusion and trajectory planning
// cores. Nothing in this package depends on time, configuration or any
// other subsystem; it is leaf-level numeric utility code.
package geom
