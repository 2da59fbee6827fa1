package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/abhinaya/internal/log"
)

// idleShutdown is how long the Python service may sit unused before it is stopped.
const idleShutdown = 30 * time.Second

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Requests are framed as a 4-byte big-endian length followed by a JSON header,
// then a 4-byte length followed by the JPEG-encoded frame. The service answers
// each request with one JSON line. Calls are serialized, so at most one request
// is in flight per detector.
type MediaPipeDetector struct {
	config    Config
	script    string
	command   func() *exec.Cmd
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer

	// JPEG of the most recent frame, shared by the three tasks of one tick
	encodedTS  int64
	encodedFor *gocv.Mat
	encoded    []byte
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started lazily on first detection.
// Returns an error wrapping ErrUnavailable when the service script is missing.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	scriptPath := findMediaPipeScript()
	if scriptPath == "" {
		return nil, fmt.Errorf("%w: mediapipe_service.py not found", ErrUnavailable)
	}

	d := &MediaPipeDetector{
		config: config,
		script: scriptPath,
	}
	d.command = d.serviceCommand
	return d, nil
}

// DetectPose runs the pose landmarker on the frame.
func (d *MediaPipeDetector) DetectPose(frame *gocv.Mat, ts int64) ([]BodyLandmarks, error) {
	var response struct {
		Poses []jsonBody `json:"poses"`
	}
	if err := d.request(NamePose, frame, ts, &response); err != nil {
		return nil, err
	}

	result := make([]BodyLandmarks, len(response.Poses))
	for i, p := range response.Poses {
		result[i] = p.toBodyLandmarks()
	}
	return result, nil
}

// DetectFaces runs the face landmarker (with blendshapes) on the frame.
func (d *MediaPipeDetector) DetectFaces(frame *gocv.Mat, ts int64) ([]FaceLandmarks, error) {
	var response struct {
		Faces []jsonFace `json:"faces"`
	}
	if err := d.request(NameFace, frame, ts, &response); err != nil {
		return nil, err
	}

	result := make([]FaceLandmarks, len(response.Faces))
	for i, f := range response.Faces {
		result[i] = f.toFaceLandmarks()
	}
	return result, nil
}

// DetectHands runs the hand landmarker on the frame.
func (d *MediaPipeDetector) DetectHands(frame *gocv.Mat, ts int64) ([]HandLandmarks, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
	}
	if err := d.request(NameHand, frame, ts, &response); err != nil {
		return nil, err
	}

	result := make([]HandLandmarks, len(response.Hands))
	for i, h := range response.Hands {
		result[i] = h.toHandLandmarks()
	}
	return result, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// request sends one task for the frame and decodes the JSON reply into out.
func (d *MediaPipeDetector) request(task string, frame *gocv.Mat, ts int64, out any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil || frame.Empty() {
		return &InvocationError{Detector: task, Err: fmt.Errorf("empty frame")}
	}

	if err := d.ensureStarted(); err != nil {
		return err
	}

	data, err := d.encode(frame, ts)
	if err != nil {
		return &InvocationError{Detector: task, Err: err}
	}

	header, err := json.Marshal(map[string]any{"task": task, "ts": ts})
	if err != nil {
		return &InvocationError{Detector: task, Err: fmt.Errorf("marshal header: %w", err)}
	}

	if err := writeFrame(d.stdin, header); err != nil {
		d.abort()
		return &InvocationError{Detector: task, Err: fmt.Errorf("write header: %w", err)}
	}
	if err := writeFrame(d.stdin, data); err != nil {
		d.abort()
		return &InvocationError{Detector: task, Err: fmt.Errorf("write data: %w", err)}
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		d.abort()
		return &InvocationError{Detector: task, Err: fmt.Errorf("read response: %w", err)}
	}

	var status struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &status); err != nil {
		d.abort()
		return &InvocationError{Detector: task, Err: fmt.Errorf("parse response: %w", err)}
	}
	if status.Error != "" {
		return &InvocationError{Detector: task, Err: fmt.Errorf("service: %s", status.Error)}
	}
	if err := json.Unmarshal([]byte(line), out); err != nil {
		d.abort()
		return &InvocationError{Detector: task, Err: fmt.Errorf("parse response: %w", err)}
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return nil
}

// encode returns the JPEG bytes for the frame, reusing the previous encoding
// when the same frame is submitted for another task.
func (d *MediaPipeDetector) encode(frame *gocv.Mat, ts int64) ([]byte, error) {
	if d.encoded != nil && d.encodedFor == frame && d.encodedTS == ts {
		return d.encoded, nil
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close
	data := append([]byte(nil), buf.GetBytes()...)

	d.encoded = data
	d.encodedFor = frame
	d.encodedTS = ts
	return data, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(payload)))

	if _, err := w.Write(length); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = d.command()

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: create stdin pipe: %v", ErrUnavailable, err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: create stdout pipe: %v", ErrUnavailable, err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("%w: start mediapipe service: %v", ErrUnavailable, err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

// serviceCommand runs the service script, preferring a virtual environment
// Python when one is installed.
func (d *MediaPipeDetector) serviceCommand() *exec.Cmd {
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}
	return exec.Command(pythonPath, d.serviceArgs()...)
}

func (d *MediaPipeDetector) serviceArgs() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		d.script,
		"--num-poses", strconv.Itoa(d.config.MaxPoses),
		"--pose-confidence", f(d.config.PoseConfidence),
		"--num-faces", strconv.Itoa(d.config.MaxFaces),
		"--face-confidence", f(d.config.FaceConfidence),
		"--num-hands", strconv.Itoa(d.config.MaxHands),
		"--hand-confidence", f(d.config.HandConfidence),
		"--blendshapes",
	}
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.encoded = nil
	d.encodedFor = nil

	return err
}

// abort kills a service whose stream can no longer be trusted, so the next
// request starts a fresh one.
func (d *MediaPipeDetector) abort() {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	if err := d.shutdown(); err != nil {
		log.Debug("mediapipe service stopped", "error", err)
	}
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findMediaPipeScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/mediapipe_service.py",
		"../scripts/mediapipe_service.py",
		filepath.Join(execDir, "scripts/mediapipe_service.py"),
		filepath.Join(os.Getenv("HOME"), ".abhinaya/scripts/mediapipe_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".abhinaya/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonPoint is a landmark as emitted by the Python service.
type jsonPoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

func (p jsonPoint) point() Point3D {
	return Point3D{X: p.X, Y: p.Y, Z: p.Z}
}

type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		lm.Points[i] = h.Points[i].point()
	}
	return lm
}

type jsonBody struct {
	Points []jsonPoint `json:"points"`
}

func (b jsonBody) toBodyLandmarks() BodyLandmarks {
	var lm BodyLandmarks
	for i := 0; i < NumPoseLandmarks && i < len(b.Points); i++ {
		lm.Points[i] = Landmark{
			Point3D:    b.Points[i].point(),
			Visibility: b.Points[i].Visibility,
		}
	}
	return lm
}

type jsonFace struct {
	Points      []jsonPoint        `json:"points"`
	Blendshapes map[string]float64 `json:"blendshapes"`
}

func (f jsonFace) toFaceLandmarks() FaceLandmarks {
	lm := FaceLandmarks{
		Points:      make([]Point3D, len(f.Points)),
		Blendshapes: f.Blendshapes,
	}
	for i, p := range f.Points {
		lm.Points[i] = p.point()
	}
	if lm.Blendshapes == nil {
		lm.Blendshapes = map[string]float64{}
	}
	return lm
}
