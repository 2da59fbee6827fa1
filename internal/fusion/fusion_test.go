package fusion

import (
	"errors"
	"math"
	"testing"

	"github.com/ayusman/abhinaya/internal/detector"
)

const epsilon = 1e-9

func pt(x, y float64) detector.Point3D { return detector.Point3D{X: x, Y: y} }

func TestCalculateAngle(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c detector.Point3D
		want    float64
	}{
		{"degenerate", pt(0.3, 0.3), pt(0.3, 0.3), pt(0.3, 0.3), 0},
		{"straight", pt(0, 0), pt(0, 1), pt(0, 2), 180},
		{"right angle", pt(1, 0), pt(0, 0), pt(0, 1), 90},
		{"reflex folds back", pt(-1, -0.1), pt(0, 0), pt(-1, 0.1), 2 * math.Atan(0.1) * 180 / math.Pi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateAngle(tt.a, tt.b, tt.c)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CalculateAngle() = %f, want %f", got, tt.want)
			}
			if got < 0 || got > 180 {
				t.Errorf("CalculateAngle() = %f out of [0,180]", got)
			}
		})
	}
}

func TestCalculateAngle_Symmetric(t *testing.T) {
	points := [][3]detector.Point3D{
		{pt(0.1, 0.2), pt(0.4, 0.4), pt(0.9, 0.1)},
		{pt(0.5, 0.9), pt(0.5, 0.5), pt(0.2, 0.5)},
		{pt(0.0, 0.0), pt(1.0, 1.0), pt(0.0, 1.0)},
		{pt(0.7, 0.2), pt(0.3, 0.6), pt(0.31, 0.95)},
	}

	for _, p := range points {
		ab := CalculateAngle(p[0], p[1], p[2])
		ba := CalculateAngle(p[2], p[1], p[0])
		if math.Abs(ab-ba) > epsilon {
			t.Errorf("angle(%v) = %f but reversed = %f", p, ab, ba)
		}
	}
}

func TestPostureFromAngles(t *testing.T) {
	tests := []struct {
		left, right float64
		want        string
	}{
		{180, 180, Standing},
		{140, 140, Standing},
		{139.9, 180, Sitting},
		{180, 139.9, Sitting},
		{90, 90, Sitting},
	}

	for _, tt := range tests {
		if got := PostureFromAngles(tt.left, tt.right); got != tt.want {
			t.Errorf("PostureFromAngles(%v, %v) = %s, want %s", tt.left, tt.right, got, tt.want)
		}
	}
}

func TestClassifyPosture(t *testing.T) {
	standing := detector.StandingBody(0.5, 0.2)
	if got := ClassifyPosture(&standing); got != Standing {
		t.Errorf("standing body classified %s", got)
	}

	sitting := detector.SittingBody(0.5, 0.2)
	if got := ClassifyPosture(&sitting); got != Sitting {
		t.Errorf("sitting body classified %s", got)
	}
}

func TestClassifyArms(t *testing.T) {
	tests := []struct {
		name        string
		left, right float64
		want        string
	}{
		{"both", 0.9, 0.9, ArmsBoth},
		{"left only", 0.9, 0.1, ArmsLeftOnly},
		{"right only", 0.3, 0.66, ArmsRightOnly},
		{"boundary is hidden", 0.65, 0.65, ArmsNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := detector.StandingBody(0.5, 0.2)
			body.Points[detector.PoseLeftWrist].Visibility = tt.left
			body.Points[detector.PoseRightWrist].Visibility = tt.right
			if got := ClassifyArms(&body); got != tt.want {
				t.Errorf("ClassifyArms() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAnalyzeExpression(t *testing.T) {
	tests := []struct {
		name          string
		shapes        map[string]float64
		wantLabel     string
		wantSquinting bool
		wantConfused  bool
	}{
		{
			name:      "neutral",
			shapes:    nil,
			wantLabel: ExpressionNeutral,
		},
		{
			name:         "brow asymmetry",
			shapes:       map[string]float64{detector.BrowOuterUpLeft: 0.6, detector.BrowOuterUpRight: 0.1},
			wantLabel:    ExpressionConfusedBrow,
			wantConfused: true,
		},
		{
			name: "furrow with squint",
			shapes: map[string]float64{
				detector.BrowDownLeft: 0.6, detector.BrowDownRight: 0.6, detector.BrowInnerUp: 0.6,
				detector.EyeSquintLeft: 0.4, detector.EyeSquintRight: 0.4,
			},
			wantLabel:     ExpressionConfusedFurrow,
			wantSquinting: true,
			wantConfused:  true,
		},
		{
			name: "furrow while smiling is not confusion",
			shapes: map[string]float64{
				detector.BrowDownLeft: 0.6, detector.BrowDownRight: 0.6, detector.BrowInnerUp: 0.6,
				detector.EyeSquintLeft: 0.4, detector.EyeSquintRight: 0.4,
				detector.MouthSmileLeft: 0.3, detector.MouthSmileRight: 0.3,
			},
			wantLabel:     ExpressionNeutral,
			wantSquinting: true,
		},
		{
			name:      "happy",
			shapes:    map[string]float64{detector.MouthSmileLeft: 0.8, detector.MouthSmileRight: 0.6},
			wantLabel: ExpressionHappy,
		},
		{
			name:      "surprised",
			shapes:    map[string]float64{detector.JawOpen: 0.7},
			wantLabel: ExpressionSurprised,
		},
		{
			name:          "squint alone",
			shapes:        map[string]float64{detector.EyeSquintLeft: 0.5, detector.EyeSquintRight: 0.2},
			wantLabel:     ExpressionNeutral,
			wantSquinting: true,
		},
		{
			name:      "squint at threshold",
			shapes:    map[string]float64{detector.EyeSquintLeft: 0.3, detector.EyeSquintRight: 0.3},
			wantLabel: ExpressionNeutral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			face := detector.FaceAt(0.5, 0.5, 0.1, tt.shapes)
			got := AnalyzeExpression(&face)
			if got.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", got.Label, tt.wantLabel)
			}
			if got.Squinting != tt.wantSquinting {
				t.Errorf("Squinting = %v, want %v", got.Squinting, tt.wantSquinting)
			}
			if got.Confused != tt.wantConfused {
				t.Errorf("Confused = %v, want %v", got.Confused, tt.wantConfused)
			}
		})
	}
}

func TestCorrelate(t *testing.T) {
	body := detector.StandingBody(0.5, 0.5)

	t.Run("nearest face under the gate", func(t *testing.T) {
		faces := []detector.FaceLandmarks{
			detector.FaceAt(0.5, 0.5, 0.1, nil),
			detector.FaceAt(0.9, 0.9, 0.1, nil),
		}
		got := Correlate([]detector.BodyLandmarks{body}, faces, false)
		if got[0] != 0 {
			t.Errorf("match = %d, want 0", got[0])
		}
	})

	t.Run("nearest face beyond the gate", func(t *testing.T) {
		faces := []detector.FaceLandmarks{detector.FaceAt(0.75, 0.5, 0.1, nil)}
		got := Correlate([]detector.BodyLandmarks{body}, faces, false)
		if got[0] != NoFace {
			t.Errorf("match = %d, want NoFace", got[0])
		}

		records := Build([]detector.BodyLandmarks{body}, faces, got, nil)
		if records[0].Emotion != Scanning {
			t.Errorf("Emotion = %q, want %q", records[0].Emotion, Scanning)
		}
	})

	t.Run("picks the closer of two", func(t *testing.T) {
		faces := []detector.FaceLandmarks{
			detector.FaceAt(0.6, 0.5, 0.1, nil),
			detector.FaceAt(0.52, 0.5, 0.1, nil),
		}
		got := Correlate([]detector.BodyLandmarks{body}, faces, false)
		if got[0] != 1 {
			t.Errorf("match = %d, want 1", got[0])
		}
	})

	t.Run("no faces", func(t *testing.T) {
		got := Correlate([]detector.BodyLandmarks{body}, nil, false)
		if got[0] != NoFace {
			t.Errorf("match = %d, want NoFace", got[0])
		}
	})
}

func TestCorrelate_SharedFace(t *testing.T) {
	bodies := []detector.BodyLandmarks{
		detector.StandingBody(0.45, 0.5),
		detector.StandingBody(0.60, 0.5),
	}
	faces := []detector.FaceLandmarks{detector.FaceAt(0.5, 0.5, 0.1, nil)}

	shared := Correlate(bodies, faces, false)
	if shared[0] != 0 || shared[1] != 0 {
		t.Errorf("non-exclusive = %v, want both bodies on face 0", shared)
	}

	exclusive := Correlate(bodies, faces, true)
	if exclusive[0] != 0 || exclusive[1] != NoFace {
		t.Errorf("exclusive = %v, want [0 %d]", exclusive, NoFace)
	}
}

func TestCorrelate_ExclusiveGlobalOrder(t *testing.T) {
	// Body 1 is closer to face 0 than body 0 is, so exclusive matching
	// hands face 0 to body 1 and face 1 to body 0.
	bodies := []detector.BodyLandmarks{
		detector.StandingBody(0.40, 0.5),
		detector.StandingBody(0.49, 0.5),
	}
	faces := []detector.FaceLandmarks{
		detector.FaceAt(0.50, 0.5, 0.1, nil),
		detector.FaceAt(0.32, 0.5, 0.1, nil),
	}

	got := Correlate(bodies, faces, true)
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("exclusive = %v, want [1 0]", got)
	}
}

func TestBuild(t *testing.T) {
	bodies := []detector.BodyLandmarks{
		detector.StandingBody(0.2, 0.3),
		detector.SittingBody(0.8, 0.3),
	}
	faces := []detector.FaceLandmarks{
		detector.FaceAt(0.8, 0.3, 0.2, map[string]float64{detector.JawOpen: 0.9}),
	}
	matches := Correlate(bodies, faces, false)

	lookup := func(face int) Regional {
		if face != 0 {
			t.Errorf("lookup for face %d, want 0", face)
		}
		return Regional{HasAccessory: true, AccessoryKnown: true, Emotion: "Fear"}
	}

	records := Build(bodies, faces, matches, lookup)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	first := records[0]
	if first.Matched() || first.Emotion != Scanning || first.BoundingArea != 0 {
		t.Errorf("unmatched record = %+v", first)
	}
	if first.Posture != Standing || first.Arms != ArmsBoth || first.Color != Palette[0] {
		t.Errorf("unmatched record attributes = %+v", first)
	}

	second := records[1]
	if second.FaceIdentity != 0 {
		t.Errorf("FaceIdentity = %d, want 0", second.FaceIdentity)
	}
	if second.Emotion != "Fear" || second.ExpressionHint != ExpressionSurprised {
		t.Errorf("Emotion = %q hint = %q, want classifier emotion and heuristic hint", second.Emotion, second.ExpressionHint)
	}
	if !second.HasAccessory {
		t.Error("HasAccessory should come from the lookup")
	}
	if second.Posture != Sitting || second.Arms != ArmsLeftOnly {
		t.Errorf("attributes = %s / %s, want Sitting / Left Only", second.Posture, second.Arms)
	}
	if math.Abs(second.BoundingArea-0.04) > 1e-6 {
		t.Errorf("BoundingArea = %f, want 0.04", second.BoundingArea)
	}
}

func TestBuild_UnknownRegionKeepsHeuristic(t *testing.T) {
	bodies := []detector.BodyLandmarks{detector.StandingBody(0.5, 0.5)}
	faces := []detector.FaceLandmarks{detector.FaceAt(0.5, 0.5, 0.1, map[string]float64{detector.MouthSmileLeft: 1, detector.MouthSmileRight: 1})}

	records := Build(bodies, faces, Correlate(bodies, faces, false), func(int) Regional { return Regional{HasAccessory: true} })
	if records[0].Emotion != ExpressionHappy {
		t.Errorf("Emotion = %q, want heuristic %q", records[0].Emotion, ExpressionHappy)
	}
	if records[0].HasAccessory {
		t.Error("HasAccessory must stay false until the accessory result is known")
	}
}

func TestRank(t *testing.T) {
	records := []PersonRecord{
		{Identity: 0, BoundingArea: 0.01},
		{Identity: 1, BoundingArea: 0.05},
		{Identity: 2, BoundingArea: 0.0},
	}

	Rank(records)

	want := []int{1, 0, 2}
	for i, id := range want {
		if records[i].Identity != id {
			t.Errorf("position %d = identity %d, want %d", i, records[i].Identity, id)
		}
	}
	if !records[0].Primary || records[1].Primary || records[2].Primary {
		t.Error("only the first record should be primary")
	}
	if Primary(records).Identity != 1 {
		t.Errorf("Primary() = %d, want 1", Primary(records).Identity)
	}
}

func TestRank_TiesKeepDetectionOrder(t *testing.T) {
	records := []PersonRecord{
		{Identity: 0}, {Identity: 1, BoundingArea: 0.02}, {Identity: 2}, {Identity: 3, BoundingArea: 0.02},
	}
	Rank(records)

	want := []int{1, 3, 0, 2}
	for i, id := range want {
		if records[i].Identity != id {
			t.Errorf("position %d = identity %d, want %d", i, records[i].Identity, id)
		}
	}

	if Primary(nil) != nil {
		t.Error("Primary(nil) should be nil")
	}
}

func TestAttachGesture(t *testing.T) {
	bodies := []detector.BodyLandmarks{
		detector.StandingBody(0.2, 0.2),
		detector.StandingBody(0.7, 0.2),
	}
	records := Build(bodies, nil, Correlate(bodies, nil, false), nil)

	// Right wrist of body 1 sits at (0.58, 0.55)
	hand := detector.OpenPalmLandmarks()
	hand.Points[detector.Wrist] = pt(0.59, 0.56)

	if got := AttachGesture(records, bodies, &hand, "open_palm"); got != 1 {
		t.Fatalf("AttachGesture() = %d, want 1", got)
	}
	if records[1].Gesture != "open_palm" || records[0].Gesture != "" {
		t.Errorf("gestures = %q, %q", records[0].Gesture, records[1].Gesture)
	}

	far := detector.OpenPalmLandmarks()
	far.Points[detector.Wrist] = pt(0.95, 0.95)
	if got := AttachGesture(records, bodies, &far, "fist"); got != -1 {
		t.Errorf("hand far from every wrist attached to %d", got)
	}
	if got := AttachGesture(records, bodies, nil, "fist"); got != -1 {
		t.Errorf("nil hand attached to %d", got)
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		bodies, faces, hands int
		want                 string
	}{
		{0, 0, 0, StatusLooking},
		{0, 2, 1, StatusLooking},
		{1, 1, 0, "Detecting: 1 Person(s) | Faces: 1 | Hands: 0"},
		{3, 2, 1, "Detecting: 3 Person(s) | Faces: 2 | Hands: 1"},
	}

	for _, tt := range tests {
		if got := StatusLine(tt.bodies, tt.faces, tt.hands); got != tt.want {
			t.Errorf("StatusLine(%d, %d, %d) = %q, want %q", tt.bodies, tt.faces, tt.hands, got, tt.want)
		}
	}

	if got := StatusError(errors.New("model missing")); got != "Error: model missing" {
		t.Errorf("StatusError() = %q", got)
	}
}

func TestColorFor(t *testing.T) {
	if ColorFor(0) != "#38bdf8" || ColorFor(5) != "#38bdf8" || ColorFor(6) != "#f472b6" {
		t.Error("palette should cycle every five identities")
	}
}
