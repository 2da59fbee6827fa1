package classify

import (
	"context"
	"errors"
	"math"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gocv.io/x/gocv"

	"github.com/ayusman/abhinaya/internal/detector"
)

func TestHasAccessory(t *testing.T) {
	tests := []struct {
		name       string
		categories []Category
		want       bool
	}{
		{"none", nil, false},
		{"unrelated", []Category{{Label: "hat", Score: 0.9}, {Label: "beard", Score: 0.4}}, false},
		{"sunglasses", []Category{{Label: "Sunglasses", Score: 0.7}}, true},
		{"lower ranked match", []Category{{Label: "face", Score: 0.9}, {Label: "reading spectacles", Score: 0.1}}, true},
		{"eyeglasses", []Category{{Label: "eyeglasses, specs", Score: 0.5}}, true},
		{"shades", []Category{{Label: "window shades", Score: 0.5}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAccessory(tt.categories); got != tt.want {
				t.Errorf("HasAccessory() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArgMaxEmotion(t *testing.T) {
	tests := []struct {
		name    string
		scores  []float32
		want    string
		wantErr bool
	}{
		{"neutral", []float32{0.9, 0, 0, 0, 0, 0, 0, 0.1}, "Neutral", false},
		{"contempt", []float32{0, 0, 0, 0, 0, 0, 0.2, 0.8}, "Contempt", false},
		{"tie keeps first", []float32{0, 0.5, 0.5, 0, 0, 0, 0, 0}, "Happy", false},
		{"short vector", []float32{1, 0}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ArgMaxEmotion(tt.scores)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrBadScores) {
				t.Errorf("error = %v, want ErrBadScores", err)
			}
			if got != tt.want {
				t.Errorf("ArgMaxEmotion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPaddedBox(t *testing.T) {
	tests := []struct {
		name string
		box  detector.Box
		want detector.Box
	}{
		{
			name: "interior",
			box:  detector.Box{MinX: 0.4, MinY: 0.4, MaxX: 0.6, MaxY: 0.5},
			want: detector.Box{MinX: 0.38, MinY: 0.39, MaxX: 0.62, MaxY: 0.51},
		},
		{
			name: "clamped at edges",
			box:  detector.Box{MinX: 0.0, MinY: 0.95, MaxX: 0.2, MaxY: 1.0},
			want: detector.Box{MinX: 0.0, MinY: 0.945, MaxX: 0.22, MaxY: 1.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PaddedBox(tt.box, RegionPadding)
			for _, pair := range [][2]float64{
				{got.MinX, tt.want.MinX}, {got.MinY, tt.want.MinY},
				{got.MaxX, tt.want.MaxX}, {got.MaxY, tt.want.MaxY},
			} {
				if math.Abs(pair[0]-pair[1]) > 1e-9 {
					t.Errorf("PaddedBox() = %+v, want %+v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestPixelRect(t *testing.T) {
	r := pixelRect(detector.Box{MinX: -0.1, MinY: 0.5, MaxX: 0.5, MaxY: 1.2}, 640, 480)
	if r.Min.X != 0 || r.Min.Y != 240 || r.Max.X != 320 || r.Max.Y != 480 {
		t.Errorf("pixelRect() = %v", r)
	}
}

func newFace() *detector.FaceLandmarks {
	f := detector.FaceAt(0.5, 0.4, 0.2, nil)
	return &f
}

func TestThrottle_RespectsInterval(t *testing.T) {
	mock := NewMockClassifier()
	mock.SetCategories([]Category{{Label: "sunglasses", Score: 0.8}})
	mock.SetScores([]float32{0, 0.9, 0, 0, 0, 0, 0, 0})

	th := NewThrottle(mock, mock, &StubRasterizer{}, Options{
		AccessoryInterval:  time.Second,
		ExpressionInterval: 100 * time.Millisecond,
	})
	ctx := context.Background()

	first := th.Classify(ctx, nil, 0, newFace(), 1000)
	if !first.HasAccessory || !first.AccessoryKnown || first.Emotion != "Happy" {
		t.Fatalf("first = %+v", first)
	}

	// Change the answers; a cached call must not see them
	mock.SetCategories(nil)
	mock.SetScores([]float32{0, 0, 0, 0.9, 0, 0, 0, 0})

	second := th.Classify(ctx, nil, 0, newFace(), 1050)
	if second != first {
		t.Errorf("second = %+v, want cached %+v", second, first)
	}
	if a, e := mock.Calls(); a != 1 || e != 1 {
		t.Errorf("calls = %d/%d, want 1/1", a, e)
	}

	// Exactly at the interval is not yet due
	th.Classify(ctx, nil, 0, newFace(), 1100)
	if _, e := mock.Calls(); e != 1 {
		t.Errorf("expression calls = %d at the interval, want 1", e)
	}

	third := th.Classify(ctx, nil, 0, newFace(), 1101)
	if third.Emotion != "Sad" || !third.HasAccessory {
		t.Errorf("third = %+v, want new emotion and cached accessory", third)
	}

	fourth := th.Classify(ctx, nil, 0, newFace(), 2001)
	if fourth.HasAccessory {
		t.Error("accessory should refresh after its interval")
	}
	if a, e := mock.Calls(); a != 2 || e != 3 {
		t.Errorf("calls = %d/%d, want 2/3", a, e)
	}
}

func TestThrottle_ErrorKeepsCache(t *testing.T) {
	mock := NewMockClassifier()
	mock.SetScores([]float32{0, 0, 0.9, 0, 0, 0, 0, 0})
	th := NewThrottle(nil, mock, &StubRasterizer{}, Options{ExpressionInterval: 100 * time.Millisecond})
	ctx := context.Background()

	th.Classify(ctx, nil, 0, newFace(), 0)

	mock.SetError(errors.New("socket closed"))
	got := th.Classify(ctx, nil, 0, newFace(), 200)
	if got.Emotion != "Surprise" {
		t.Errorf("Emotion = %q, want cached Surprise", got.Emotion)
	}
	if got.EmotionAt != 200 {
		t.Errorf("EmotionAt = %d, failed call should still count as an invocation", got.EmotionAt)
	}

	// Not due again until the interval passes, even after a failure
	th.Classify(ctx, nil, 0, newFace(), 250)
	if _, e := mock.Calls(); e != 2 {
		t.Errorf("expression calls = %d, want 2", e)
	}
}

func TestThrottle_IdentitiesAreIndependent(t *testing.T) {
	mock := NewMockClassifier()
	th := NewThrottle(mock, mock, &StubRasterizer{}, Options{})
	ctx := context.Background()

	th.Classify(ctx, nil, 0, newFace(), 0)
	th.Classify(ctx, nil, 1, newFace(), 10)

	if a, e := mock.Calls(); a != 2 || e != 2 {
		t.Errorf("calls = %d/%d, want each identity classified once", a, e)
	}
	if _, ok := th.Entry(1); !ok {
		t.Error("Entry(1) missing")
	}
	if _, ok := th.Entry(2); ok {
		t.Error("Entry(2) should not exist")
	}

	th.Reset()
	if _, ok := th.Entry(0); ok {
		t.Error("Reset should drop entries")
	}
}

func TestThrottle_RasterizeFailure(t *testing.T) {
	mock := NewMockClassifier()
	raster := &StubRasterizer{Err: ErrEmptyRegion}
	th := NewThrottle(mock, mock, raster, Options{})

	got := th.Classify(context.Background(), nil, 0, newFace(), 0)
	if got.AccessoryKnown || got.Emotion != "" {
		t.Errorf("entry = %+v, want nothing known", got)
	}
	if a, e := mock.Calls(); a != 0 || e != 0 {
		t.Errorf("classifiers called %d/%d times without a crop", a, e)
	}

	if len(raster.Boxes) != 1 {
		t.Fatalf("rasterizer called %d times, want 1", len(raster.Boxes))
	}
	box := raster.Boxes[0]
	if math.Abs(box.Width()-0.24) > 1e-9 {
		t.Errorf("crop width = %f, want face width padded by 10%% per side", box.Width())
	}
}

// waitDrain drains until want results have been applied or a second passes.
func waitDrain(t *testing.T, th *Throttle, want int) {
	t.Helper()
	applied := 0
	deadline := time.Now().Add(time.Second)
	for applied < want && time.Now().Before(deadline) {
		applied += th.Drain()
		time.Sleep(5 * time.Millisecond)
	}
	if applied < want {
		t.Fatalf("applied %d results, want %d", applied, want)
	}
}

func TestThrottle_Pool(t *testing.T) {
	mock := NewMockClassifier()
	mock.SetScores([]float32{0, 0, 0, 0, 0.9, 0, 0, 0})
	mock.Block = make(chan struct{})

	th := NewThrottle(nil, mock, &StubRasterizer{}, Options{Workers: 1, Queue: 1, ExpressionInterval: 100 * time.Millisecond})
	defer th.Close()
	ctx := context.Background()

	got := th.Classify(ctx, nil, 0, newFace(), 0)
	if got.Emotion != "" {
		t.Errorf("async result visible in the same pass: %+v", got)
	}

	// A second due call while the first is outstanding is dropped
	th.Classify(ctx, nil, 0, newFace(), 500)
	if th.pool.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", th.pool.Pending())
	}

	close(mock.Block)
	waitDrain(t, th, 1)

	e, _ := th.Entry(0)
	if e.Emotion != "Angry" {
		t.Errorf("Emotion = %q after Drain, want Angry", e.Emotion)
	}
}

func TestThrottle_PoolResultsDiscardedAfterReset(t *testing.T) {
	mock := NewMockClassifier()
	mock.Block = make(chan struct{})

	th := NewThrottle(nil, mock, &StubRasterizer{}, Options{Workers: 1, Queue: 1})
	defer th.Close()

	th.Classify(context.Background(), nil, 0, newFace(), 0)
	th.Reset()
	close(mock.Block)

	deadline := time.Now().Add(time.Second)
	for th.pool.Pending() > 0 && time.Now().Before(deadline) {
		th.Drain()
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := th.Entry(0); ok {
		t.Error("result from before Reset was applied")
	}
}

func TestPool_SubmitLimits(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 2)
	p := NewPool(1, 1, func(ctx context.Context, j Job) Result {
		started <- struct{}{}
		<-block
		return Result{Job: j}
	})

	if !p.Submit(Job{Identity: 0, Kind: KindAccessory}) {
		t.Fatal("first submit rejected")
	}
	<-started // the worker holds the first job; the queue is empty again
	if p.Submit(Job{Identity: 0, Kind: KindAccessory}) {
		t.Error("duplicate identity/kind accepted")
	}
	if !p.Submit(Job{Identity: 0, Kind: KindExpression}) {
		t.Error("other kind rejected")
	}
	if p.Submit(Job{Identity: 1, Kind: KindExpression}) {
		t.Error("submit beyond capacity accepted")
	}

	close(block)
	deadline := time.Now().Add(time.Second)
	var got []Result
	for len(got) < 2 && time.Now().Before(deadline) {
		got = append(got, p.Collect()...)
		time.Sleep(5 * time.Millisecond)
	}
	if len(got) != 2 {
		t.Fatalf("collected %d results, want 2", len(got))
	}

	p.Close()
	p.Close()
	if p.Submit(Job{Identity: 2, Kind: KindAccessory}) {
		t.Error("submit after Close accepted")
	}
}

func TestSocketClient(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "classifier.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			var req classifierRequest
			if err := msgpack.NewDecoder(conn).Decode(&req); err != nil {
				conn.Close()
				continue
			}

			var resp classifierResponse
			switch req.Task {
			case KindAccessory:
				resp.Categories = []Category{{Label: "sunglasses", Score: 0.6}}
			case KindExpression:
				if len(req.Pixels) != ExpressionSize*ExpressionSize {
					resp.Error = "bad pixels"
				}
				resp.Scores = []float32{0, 0, 0, 0, 0, 0, 1, 0}
			default:
				resp.Error = "unknown task"
			}
			data, _ := msgpack.Marshal(&resp)
			conn.Write(data)
			conn.Close()
		}
	}()

	c := NewSocketClient(sock)
	c.SetTimeout(time.Second)
	raster, _ := (&StubRasterizer{}).Rasterize(nil, detector.Box{})
	ctx := context.Background()

	cats, err := c.ClassifyAccessory(ctx, raster)
	if err != nil {
		t.Fatalf("ClassifyAccessory() error = %v", err)
	}
	if !HasAccessory(cats) {
		t.Errorf("categories = %v", cats)
	}

	scores, err := c.ClassifyExpression(ctx, raster)
	if err != nil {
		t.Fatalf("ClassifyExpression() error = %v", err)
	}
	if label, _ := ArgMaxEmotion(scores); label != "Fear" {
		t.Errorf("label = %q, want Fear", label)
	}

	if _, err := c.ClassifyExpression(ctx, &Raster{}); err == nil {
		t.Error("expected error for an empty raster")
	}
}

func TestSocketClient_NoService(t *testing.T) {
	c := NewSocketClient(filepath.Join(t.TempDir(), "missing.sock"))
	raster, _ := (&StubRasterizer{}).Rasterize(nil, detector.Box{})

	if _, err := c.ClassifyAccessory(context.Background(), raster); err == nil {
		t.Error("expected dial error")
	}
}

func TestGocvRasterizer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(255, 255, 255, 0))

	r, err := GocvRasterizer{}.Rasterize(&frame, detector.Box{MinX: 0.25, MinY: 0.25, MaxX: 0.5, MaxY: 0.5})
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(r.RGB) != RegionSize*RegionSize*3 {
		t.Errorf("len(RGB) = %d", len(r.RGB))
	}
	if len(r.Gray) != ExpressionSize*ExpressionSize {
		t.Errorf("len(Gray) = %d", len(r.Gray))
	}
	if r.Gray[0] < 0.99 {
		t.Errorf("white frame gray = %f, want ~1", r.Gray[0])
	}

	if _, err := (GocvRasterizer{}).Rasterize(&frame, detector.Box{MinX: 1, MinY: 1, MaxX: 1, MaxY: 1}); !errors.Is(err, ErrEmptyRegion) {
		t.Errorf("empty box error = %v, want ErrEmptyRegion", err)
	}
}
