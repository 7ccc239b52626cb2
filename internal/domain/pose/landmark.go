// Package pose holds the landmark vocabulary shared by the extractor and the posture scorer.
// Coordinates are normalized to the image: origin top-left, x to the right, y downward.
package pose

import (
	"math"
)

// NumLandmarks is the size of the BlazePose topology the extractor emits.
const NumLandmarks = 33

// Landmark is one detected body point.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Finite reports whether both coordinates are real numbers.
func (l Landmark) Finite() bool {
	return !math.IsNaN(l.X) && !math.IsInf(l.X, 0) && !math.IsNaN(l.Y) && !math.IsInf(l.Y, 0)
}

// Name identifies a landmark in the BlazePose topology.
type Name string

// Landmark names in model output order.
const (
	Nose           Name = "nose"
	LeftEyeInner   Name = "left_eye_inner"
	LeftEye        Name = "left_eye"
	LeftEyeOuter   Name = "left_eye_outer"
	RightEyeInner  Name = "right_eye_inner"
	RightEye       Name = "right_eye"
	RightEyeOuter  Name = "right_eye_outer"
	LeftEar        Name = "left_ear"
	RightEar       Name = "right_ear"
	MouthLeft      Name = "mouth_left"
	MouthRight     Name = "mouth_right"
	LeftShoulder   Name = "left_shoulder"
	RightShoulder  Name = "right_shoulder"
	LeftElbow      Name = "left_elbow"
	RightElbow     Name = "right_elbow"
	LeftWrist      Name = "left_wrist"
	RightWrist     Name = "right_wrist"
	LeftPinky      Name = "left_pinky"
	RightPinky     Name = "right_pinky"
	LeftIndex      Name = "left_index"
	RightIndex     Name = "right_index"
	LeftThumb      Name = "left_thumb"
	RightThumb     Name = "right_thumb"
	LeftHip        Name = "left_hip"
	RightHip       Name = "right_hip"
	LeftKnee       Name = "left_knee"
	RightKnee      Name = "right_knee"
	LeftAnkle      Name = "left_ankle"
	RightAnkle     Name = "right_ankle"
	LeftHeel       Name = "left_heel"
	RightHeel      Name = "right_heel"
	LeftFootIndex  Name = "left_foot_index"
	RightFootIndex Name = "right_foot_index"
)

var names = [NumLandmarks]Name{ //nolint:gochecknoglobals // fixed topology
	Nose, LeftEyeInner, LeftEye, LeftEyeOuter, RightEyeInner, RightEye, RightEyeOuter,
	LeftEar, RightEar, MouthLeft, MouthRight,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist,
	LeftPinky, RightPinky, LeftIndex, RightIndex, LeftThumb, RightThumb,
	LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
	LeftHeel, RightHeel, LeftFootIndex, RightFootIndex,
}

var indexOf = func() map[Name]int { //nolint:gochecknoglobals // fixed topology
	m := make(map[Name]int, NumLandmarks)
	for i, n := range names {
		m[n] = i
	}
	return m
}()

// Index returns the model output position of n.
func (n Name) Index() (int, bool) {
	i, ok := indexOf[n]
	return i, ok
}

// Valid reports whether n belongs to the topology.
func (n Name) Valid() bool {
	_, ok := indexOf[n]
	return ok
}

// Mirror returns the name of the opposite side ("left_ear" <-> "right_ear").
// Midline points map to themselves.
func (n Name) Mirror() Name {
	s := string(n)
	switch {
	case len(s) > 5 && s[:5] == "left_":
		return Name("right_" + s[5:])
	case len(s) > 6 && s[:6] == "right_":
		return Name("left_" + s[6:])
	case n == MouthLeft:
		return MouthRight
	case n == MouthRight:
		return MouthLeft
	}
	return n
}

// Names returns the topology in model output order.
func Names() []Name {
	out := make([]Name, NumLandmarks)
	copy(out, names[:])
	return out
}
