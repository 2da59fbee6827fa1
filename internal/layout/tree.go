// Package layout holds the kiosk UI's actionable element tree and resolves
// pointer positions against it.
package layout

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ayusman/abhinaya/internal/pointer"
)

// ErrInvalidLayout is returned by Replace for a malformed element list.
var ErrInvalidLayout = errors.New("layout: invalid element tree")

// Element is one rectangle of the kiosk UI in screen pixels.
type Element struct {
	ID     string  `json:"id"`
	Parent string  `json:"parent,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// Z orders overlapping elements. Equal Z falls back to list order, later on top.
	Z          int  `json:"z"`
	Actionable bool `json:"actionable"`
}

// Contains reports whether (x, y) lies inside the element.
func (e *Element) Contains(x, y float64) bool {
	return x >= e.X && x < e.X+e.Width && y >= e.Y && y < e.Y+e.Height
}

// Activation is delivered to OnActivate callbacks.
type Activation struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Tree is the current element set. It implements pointer.HitTester and is
// safe for concurrent use.
type Tree struct {
	mu        sync.RWMutex
	elements  []Element
	index     map[string]int
	callbacks []func(Activation)
}

var _ pointer.HitTester = (*Tree)(nil)

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{index: make(map[string]int)}
}

// Replace swaps in a new element list. IDs must be unique, parents must
// exist and the parent links must not loop. On error the old tree is kept.
func (t *Tree) Replace(elements []Element) error {
	index := make(map[string]int, len(elements))
	for i, e := range elements {
		if e.ID == "" {
			return fmt.Errorf("%w: element %d has no id", ErrInvalidLayout, i)
		}
		if _, dup := index[e.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidLayout, e.ID)
		}
		if e.Width < 0 || e.Height < 0 {
			return fmt.Errorf("%w: %q has negative size", ErrInvalidLayout, e.ID)
		}
		index[e.ID] = i
	}

	for _, e := range elements {
		seen := map[string]bool{e.ID: true}
		for p := e.Parent; p != ""; p = elements[index[p]].Parent {
			if _, ok := index[p]; !ok {
				return fmt.Errorf("%w: %q has unknown parent %q", ErrInvalidLayout, e.ID, p)
			}
			if seen[p] {
				return fmt.Errorf("%w: parent cycle at %q", ErrInvalidLayout, e.ID)
			}
			seen[p] = true
		}
	}

	copied := make([]Element, len(elements))
	copy(copied, elements)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.elements = copied
	t.index = index
	return nil
}

// Elements returns a copy of the current list.
func (t *Tree) Elements() []Element {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Element, len(t.elements))
	copy(out, t.elements)
	return out
}

// ResolveTarget finds the topmost element containing (x, y) and walks up to
// its nearest actionable ancestor, itself included. When no ancestor is
// actionable the topmost element is returned.
func (t *Tree) ResolveTarget(x, y float64) (pointer.Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	top := -1
	for i := range t.elements {
		e := &t.elements[i]
		if !e.Contains(x, y) {
			continue
		}
		if top < 0 || e.Z >= t.elements[top].Z {
			top = i
		}
	}
	if top < 0 {
		return pointer.Handle{}, false
	}

	for i := top; ; {
		if t.elements[i].Actionable {
			return pointer.Handle{ID: t.elements[i].ID, X: x, Y: y}, true
		}
		parent := t.elements[i].Parent
		if parent == "" {
			break
		}
		i = t.index[parent]
	}
	return pointer.Handle{ID: t.elements[top].ID, X: x, Y: y}, true
}

// Activate notifies every OnActivate callback. It fails with
// pointer.ErrNoTarget when the element is no longer in the tree.
func (t *Tree) Activate(h pointer.Handle) error {
	t.mu.RLock()
	_, ok := t.index[h.ID]
	callbacks := append([]func(Activation){}, t.callbacks...)
	t.mu.RUnlock()

	if !ok {
		return fmt.Errorf("activate %q: %w", h.ID, pointer.ErrNoTarget)
	}

	a := Activation{ID: h.ID, X: h.X, Y: h.Y}
	for _, cb := range callbacks {
		cb(a)
	}
	return nil
}

// OnActivate registers a callback for activations.
func (t *Tree) OnActivate(cb func(Activation)) {
	if cb == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}
