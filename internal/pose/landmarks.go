// Package pose turns decoded frames into named body landmarks. Inference
// runs in a long-lived Python worker subprocess; this package is the Go-side
// adapter plus the canonical skeleton definition shared by every stage.
package pose

import "strings"

// Canonical skeleton: the fixed, ordered 33-point full-body landmark set.
// Every detected frame carries exactly these names in exactly this order.
const (
	Nose           = "nose"
	LeftEyeInner   = "left_eye_inner"
	LeftEye        = "left_eye"
	LeftEyeOuter   = "left_eye_outer"
	RightEyeInner  = "right_eye_inner"
	RightEye       = "right_eye"
	RightEyeOuter  = "right_eye_outer"
	LeftEar        = "left_ear"
	RightEar       = "right_ear"
	MouthLeft      = "mouth_left"
	MouthRight     = "mouth_right"
	LeftShoulder   = "left_shoulder"
	RightShoulder  = "right_shoulder"
	LeftElbow      = "left_elbow"
	RightElbow     = "right_elbow"
	LeftWrist      = "left_wrist"
	RightWrist     = "right_wrist"
	LeftPinky      = "left_pinky"
	RightPinky     = "right_pinky"
	LeftIndex      = "left_index"
	RightIndex     = "right_index"
	LeftThumb      = "left_thumb"
	RightThumb     = "right_thumb"
	LeftHip        = "left_hip"
	RightHip       = "right_hip"
	LeftKnee       = "left_knee"
	RightKnee      = "right_knee"
	LeftAnkle      = "left_ankle"
	RightAnkle     = "right_ankle"
	LeftHeel       = "left_heel"
	RightHeel      = "right_heel"
	LeftFootIndex  = "left_foot_index"
	RightFootIndex = "right_foot_index"
)

// Names lists the canonical skeleton in wire order. The worker reports
// landmarks positionally; index i maps to Names[i].
var Names = []string{
	Nose,
	LeftEyeInner, LeftEye, LeftEyeOuter,
	RightEyeInner, RightEye, RightEyeOuter,
	LeftEar, RightEar,
	MouthLeft, MouthRight,
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftPinky, RightPinky,
	LeftIndex, RightIndex,
	LeftThumb, RightThumb,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
	LeftHeel, RightHeel,
	LeftFootIndex, RightFootIndex,
}

// Edge is one skeleton connection, endpoints given as canonical names.
type Edge struct {
	A, B string
}

// Topology is the canonical skeleton edge list used by the overlay renderer.
var Topology = []Edge{
	// face
	{Nose, LeftEyeInner}, {LeftEyeInner, LeftEye}, {LeftEye, LeftEyeOuter}, {LeftEyeOuter, LeftEar},
	{Nose, RightEyeInner}, {RightEyeInner, RightEye}, {RightEye, RightEyeOuter}, {RightEyeOuter, RightEar},
	{MouthLeft, MouthRight},
	// torso
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip},
	{LeftHip, RightHip},
	// arms
	{LeftShoulder, LeftElbow}, {LeftElbow, LeftWrist},
	{LeftWrist, LeftPinky}, {LeftWrist, LeftIndex}, {LeftWrist, LeftThumb}, {LeftPinky, LeftIndex},
	{RightShoulder, RightElbow}, {RightElbow, RightWrist},
	{RightWrist, RightPinky}, {RightWrist, RightIndex}, {RightWrist, RightThumb}, {RightPinky, RightIndex},
	// legs
	{LeftHip, LeftKnee}, {LeftKnee, LeftAnkle},
	{LeftAnkle, LeftHeel}, {LeftHeel, LeftFootIndex}, {LeftAnkle, LeftFootIndex},
	{RightHip, RightKnee}, {RightKnee, RightAnkle},
	{RightAnkle, RightHeel}, {RightHeel, RightFootIndex}, {RightAnkle, RightFootIndex},
}

var nameIndex = func() map[string]int {
	m := make(map[string]int, len(Names))
	for i, n := range Names {
		m[n] = i
	}
	return m
}()

// Index returns the wire position of a canonical name, or -1 for unknown
// names.
func Index(name string) int {
	if i, ok := nameIndex[name]; ok {
		return i
	}
	return -1
}

// Mirror returns the laterally mirrored landmark name. Names without a
// left_/right_ prefix (nose, mouth corners keep their own pairing) mirror to
// themselves.
func Mirror(name string) string {
	switch {
	case strings.HasPrefix(name, "left_"):
		return "right_" + strings.TrimPrefix(name, "left_")
	case strings.HasPrefix(name, "right_"):
		return "left_" + strings.TrimPrefix(name, "right_")
	case name == MouthLeft:
		return MouthRight
	case name == MouthRight:
		return MouthLeft
	}
	return name
}
