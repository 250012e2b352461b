package fractal

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	mandel "github.com/marben/adaptive_mandel"
)

var (
	ErrDuplicate = errors.New("fractal already registered")
	ErrUnknown   = errors.New("unknown fractal")
)

// Registry maps fractal names to implementations. It is built explicitly at
// startup and handed to whatever needs to resolve a name.
type Registry struct {
	mu      sync.RWMutex
	fractal map[string]mandel.Fractal
}

func NewRegistry() *Registry {
	return &Registry{fractal: make(map[string]mandel.Fractal)}
}

// Default returns a new registry holding every built-in fractal.
func Default() *Registry {
	r := NewRegistry()
	for _, f := range []mandel.Fractal{Mandelbrot(), Mandel3(), Mandelbar(), BurningShip()} {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(f mandel.Fractal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := f.Name()
	if _, ok := r.fractal[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.fractal[name] = f
	return nil
}

func (r *Registry) Lookup(name string) (mandel.Fractal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fractal[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknown, name, r.names())
	}
	return f, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.fractal))
	for n := range r.fractal {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
