package ballfilter

import (
	"math"

	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/vision/camera"
)

// ballRadiusMeters is the regulation ball radius, used only for the camera
// projection in isBallVisible.
const ballRadiusMeters = 0.0215

type lineCircleHit struct {
	Point  geom.Vec2
	Lambda float64
}

// intersectLineCircle finds where the ray offset+lambda*dir meets the circle
// centered at center with the given radius (§4.3 hull geometry).
func intersectLineCircle(offset, dir, center geom.Vec2, radius float64) []lineCircleHit {
	dir = dir.Normalized()
	if dir == (geom.Vec2{}) {
		return nil
	}
	constPart := offset.Sub(center)

	a := dir.Dot(dir)
	b := 2 * dir.Dot(constPart)
	c := constPart.Dot(constPart) - radius*radius

	det := b*b - 4*a*c
	if det < 0 {
		return nil
	}
	if det < 0.00001 {
		lambda := -b / (2 * a)
		return []lineCircleHit{{offset.Add(dir.Scale(lambda)), lambda}}
	}
	sq := math.Sqrt(det)
	l1, l2 := (-b+sq)/(2*a), (-b-sq)/(2*a)
	return []lineCircleHit{
		{offset.Add(dir.Scale(l1)), l1},
		{offset.Add(dir.Scale(l2)), l2},
	}
}

// intersectLineSegmentCircle restricts intersectLineCircle to the segment
// p1-p2, preferring the closer of two hits within the segment's span.
func intersectLineSegmentCircle(p1, p2, center geom.Vec2, radius float64) (geom.Vec2, bool) {
	dist := p2.Sub(p1).Length()
	hits := intersectLineCircle(p1, p2.Sub(p1), center, radius)
	if len(hits) == 0 {
		return geom.Vec2{}, false
	}
	if len(hits) == 1 {
		if hits[0].Lambda >= 0 && hits[0].Lambda <= dist {
			return hits[0].Point, true
		}
		return geom.Vec2{}, false
	}
	if hits[0].Lambda > hits[1].Lambda {
		hits[0], hits[1] = hits[1], hits[0]
	}
	for _, h := range hits {
		if h.Lambda >= 0 && h.Lambda <= dist {
			return h.Point, true
		}
	}
	return geom.Vec2{}, false
}

// intersectLineLine solves pos1+t1*dir1 == pos2+t2*dir2, reporting false for
// (near-)parallel lines.
func intersectLineLine(pos1, dir1, pos2, dir2 geom.Vec2) (t1, t2 float64, ok bool) {
	n1, n2 := dir1.Perpendicular(), dir2.Perpendicular()
	if math.Abs(n1.Dot(dir2))/(dir1.Length()*dir2.Length()) < 0.0001 {
		return 0, 0, false
	}
	diff := pos2.Sub(pos1)
	t1 = n2.Dot(diff) / n2.Dot(dir1)
	t2 = -n1.Dot(diff) / n1.Dot(dir2)
	return t1, t2, true
}

// intersectLineSegmentRobot finds where segment p1-p2 first meets robot's
// hull: a disc of the given radius, fronted by a dribbler plane of width
// dribblerWidth that takes priority when the segment approaches from in
// front of the robot (§4.3, "hull = disc minus half-plane in front of
// dribbler").
func intersectLineSegmentRobot(p1, p2 geom.Vec2, robot NearbyRobot, robotRadius, dribblerWidth float64) (geom.Vec2, bool) {
	toDribbler := robot.DribblerPos.Sub(robot.RobotPos).Normalized()
	if toDribbler == (geom.Vec2{}) {
		toDribbler = geom.Vec2{X: 1, Y: 0}
	}
	sideways := toDribbler.Perpendicular()

	var dribblerHit geom.Vec2
	haveDribblerHit := false
	if lam1, lam2, ok := intersectLineLine(robot.DribblerPos, sideways, p1, p2.Sub(p1)); ok {
		if math.Abs(lam1) <= dribblerWidth/2 && lam2 >= 0 && lam2 <= 1 {
			candidate := robot.DribblerPos.Add(sideways.Scale(lam1))
			if p1.Sub(robot.DribblerPos).Dot(toDribbler) >= 0 {
				return candidate, true
			}
			dribblerHit = candidate
			haveDribblerHit = true
		}
	}

	hullHit, haveHullHit := intersectLineSegmentCircle(p1, p2, robot.RobotPos, robotRadius)
	switch {
	case haveDribblerHit && haveHullHit:
		if hullHit.Sub(p1).Length() < dribblerHit.Sub(p1).Length() {
			return hullHit, true
		}
		return dribblerHit, true
	case haveHullHit:
		return hullHit, true
	default:
		return geom.Vec2{}, false
	}
}

// isInsideRobot reports whether pos lies within robot's body disc and is not
// in front of the dribbler plane (§4.3).
func isInsideRobot(pos geom.Vec2, robot NearbyRobot, robotRadius float64) bool {
	if pos.Distance(robot.RobotPos) > robotRadius {
		return false
	}
	toDribbler := robot.DribblerPos.Sub(robot.RobotPos).Normalized()
	if toDribbler == (geom.Vec2{}) {
		return true
	}
	return pos.Sub(robot.DribblerPos).Dot(toDribbler) <= 0
}

// isBallVisible reports whether a camera at cameraPos could see a ball
// resting at pos, given that robot's hull might occlude it: the ball's
// center is projected onto the robot's own height plane along the camera
// ray, and that projection must land outside the robot's hull (or in front
// of its dribbler) and the true line of sight must not cross the hull
// either (§4.3).
func isBallVisible(pos geom.Vec2, robot NearbyRobot, robotRadius, robotHeight float64, cameraPos camera.Vec3) bool {
	toBall := geom.Vec2{X: pos.X - cameraPos.X, Y: pos.Y - cameraPos.Y}
	toBallZ := ballRadiusMeters - cameraPos.Z
	if math.Abs(toBallZ) < 1e-9 {
		return true
	}
	length := (robotHeight - cameraPos.Z) / toBallZ
	projected := geom.Vec2{
		X: cameraPos.X + toBall.X*length,
		Y: cameraPos.Y + toBall.Y*length,
	}

	inRadius := robot.RobotPos.Distance(projected) <= robotRadius
	frontOfDribbler := projected.Sub(robot.DribblerPos).Dot(robot.DribblerPos.Sub(robot.RobotPos)) > 0
	_, blocked := intersectLineSegmentRobot(pos, projected, robot, robotRadius*0.98, 0)
	return (!inRadius || frontOfDribbler) && !blocked
}

// projectOffset expresses pos as (along-dribbler, sideways) coordinates
// relative to robot, the inverse of unprojectOffset.
func projectOffset(pos geom.Vec2, robot NearbyRobot) geom.Vec2 {
	toDribbler := robot.DribblerPos.Sub(robot.RobotPos).Normalized()
	if toDribbler == (geom.Vec2{}) {
		toDribbler = geom.Vec2{X: 1, Y: 0}
	}
	sideways := toDribbler.Perpendicular()
	rel := pos.Sub(robot.RobotPos)
	return geom.Vec2{X: rel.Dot(toDribbler), Y: rel.Dot(sideways)}
}

func unprojectOffset(offset geom.Vec2, robot NearbyRobot) geom.Vec2 {
	toDribbler := robot.DribblerPos.Sub(robot.RobotPos).Normalized()
	if toDribbler == (geom.Vec2{}) {
		toDribbler = geom.Vec2{X: 1, Y: 0}
	}
	sideways := toDribbler.Perpendicular()
	return robot.RobotPos.Add(toDribbler.Scale(offset.X)).Add(sideways.Scale(offset.Y))
}
