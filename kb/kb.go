package kb

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/signalsfoundry/orrery/model"
)

var (
	// ErrBodyExists indicates a body with the same name already exists in its parent scope.
	ErrBodyExists = errors.New("body already exists")
	// ErrBodyNotFound indicates a requested body was not found.
	ErrBodyNotFound = errors.New("body not found")
	// ErrParentNotFound indicates a moon references a parent that is not in the catalog.
	ErrParentNotFound = errors.New("parent body not found")
	// ErrInvalidBody indicates a body definition failed validation.
	ErrInvalidBody = errors.New("invalid body")
	// ErrSealed indicates the catalog no longer accepts bodies.
	ErrSealed = errors.New("catalog is sealed")
)

// KnowledgeBase is an in-memory, thread-safe catalog of body definitions.
// Insertion order is preserved so that parents always precede their moons.
type KnowledgeBase struct {
	mu sync.RWMutex

	bodies map[string]*model.BodyDefinition
	order  []string
	sealed bool
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		bodies: make(map[string]*model.BodyDefinition),
	}
}

// FromDefinitions builds a sealed KB from an ordered list of definitions.
func FromDefinitions(defs []model.BodyDefinition) (*KnowledgeBase, error) {
	store := NewKnowledgeBase()
	for i := range defs {
		def := defs[i]
		if err := store.AddBody(&def); err != nil {
			return nil, err
		}
	}
	store.Seal()
	return store, nil
}

// AddBody validates and adds a body definition.
func (kb *KnowledgeBase) AddBody(d *model.BodyDefinition) error {
	if d == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidBody)
	}
	if err := validate(d); err != nil {
		return err
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.sealed {
		return fmt.Errorf("add %q: %w", d.Name, ErrSealed)
	}
	key := d.Key()
	if _, exists := kb.bodies[key]; exists {
		return fmt.Errorf("body %q: %w", key, ErrBodyExists)
	}
	if d.Kind == model.BodyKindMoon {
		parent, ok := kb.bodies[d.Parent]
		if !ok {
			return fmt.Errorf("moon %q references %q: %w", d.Name, d.Parent, ErrParentNotFound)
		}
		if parent.Kind != model.BodyKindPlanet {
			return fmt.Errorf("%w: moon %q parent %q is a %s", ErrInvalidBody, d.Name, d.Parent, parent.Kind)
		}
	}
	kb.bodies[key] = d
	kb.order = append(kb.order, key)
	return nil
}

// Seal stops the KB from accepting further bodies.
func (kb *KnowledgeBase) Seal() {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.sealed = true
}

// GetBody returns the body stored under key ("Name" or "Parent/Name").
func (kb *KnowledgeBase) GetBody(key string) (*model.BodyDefinition, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	d, ok := kb.bodies[key]
	if !ok {
		return nil, fmt.Errorf("body %q: %w", key, ErrBodyNotFound)
	}
	return d, nil
}

// ListBodies returns a copy of all definitions in insertion order.
func (kb *KnowledgeBase) ListBodies() []model.BodyDefinition {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.BodyDefinition, 0, len(kb.order))
	for _, key := range kb.order {
		res = append(res, *kb.bodies[key])
	}
	return res
}

// Len returns the number of bodies in the catalog.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.order)
}

func validate(d *model.BodyDefinition) error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidBody)
	}
	if !(d.Radius > 0) {
		return fmt.Errorf("%w: %q radius must be positive, got %v", ErrInvalidBody, d.Name, d.Radius)
	}
	if d.Distance < 0 || math.IsNaN(d.Distance) {
		return fmt.Errorf("%w: %q distance must be non-negative, got %v", ErrInvalidBody, d.Name, d.Distance)
	}
	if math.IsNaN(d.SpinRate) || math.IsInf(d.SpinRate, 0) || math.IsNaN(d.OrbitRate) || math.IsInf(d.OrbitRate, 0) {
		return fmt.Errorf("%w: %q rates must be finite", ErrInvalidBody, d.Name)
	}

	switch d.Kind {
	case model.BodyKindStar, model.BodyKindPlanet:
		if d.Parent != "" {
			return fmt.Errorf("%w: %s %q cannot have a parent", ErrInvalidBody, d.Kind, d.Name)
		}
	case model.BodyKindMoon:
		if d.Parent == "" {
			return fmt.Errorf("%w: moon %q needs a parent planet", ErrInvalidBody, d.Name)
		}
	default:
		return fmt.Errorf("%w: %q has unknown kind", ErrInvalidBody, d.Name)
	}
	return nil
}
