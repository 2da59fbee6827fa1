package classify

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/abhinaya/internal/detector"
)

// MockClassifier is a scripted AccessoryClassifier and ExpressionClassifier.
type MockClassifier struct {
	mu sync.Mutex

	categories []Category
	scores     []float32
	err        error

	accessoryCalls  int
	expressionCalls int

	// Block, when set, is received from before each call returns.
	Block chan struct{}
}

// NewMockClassifier returns a classifier answering with no categories and a
// Neutral-leaning score vector.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{scores: []float32{1, 0, 0, 0, 0, 0, 0, 0}}
}

// SetCategories sets the accessory answer.
func (m *MockClassifier) SetCategories(c []Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = c
}

// SetScores sets the expression answer.
func (m *MockClassifier) SetScores(s []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = s
}

// SetError makes both classifiers fail with err; nil clears it.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of accessory and expression invocations.
func (m *MockClassifier) Calls() (accessory, expression int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessoryCalls, m.expressionCalls
}

func (m *MockClassifier) ClassifyAccessory(ctx context.Context, r *Raster) ([]Category, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessoryCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.categories, nil
}

func (m *MockClassifier) ClassifyExpression(ctx context.Context, r *Raster) ([]float32, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expressionCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.scores, nil
}

func (m *MockClassifier) wait() {
	if m.Block != nil {
		<-m.Block
	}
}

// StubRasterizer returns a blank raster without touching the frame.
type StubRasterizer struct {
	Err   error
	Boxes []detector.Box
}

// Rasterize implements Rasterizer.
func (s *StubRasterizer) Rasterize(frame *gocv.Mat, box detector.Box) (*Raster, error) {
	s.Boxes = append(s.Boxes, box)
	if s.Err != nil {
		return nil, s.Err
	}
	return &Raster{
		RGB:  make([]byte, RegionSize*RegionSize*3),
		Gray: make([]float32, ExpressionSize*ExpressionSize),
	}, nil
}
