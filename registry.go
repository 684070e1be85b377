package vidpipe

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// FactoryFunc creates a new element with provided name.
type FactoryFunc func(name string) (Element, error)

// ErrNoFactory is returned when element factory is not registered.
var ErrNoFactory = errors.New("no such element factory")

var registry = struct {
	sync.Mutex
	factories map[string]FactoryFunc
	counters  map[string]int
}{
	factories: make(map[string]FactoryFunc),
	counters:  make(map[string]int),
}

// Register makes element factory available by name.
// Registering the same name twice replaces the factory.
func Register(factory string, fn FactoryFunc) {
	registry.Lock()
	defer registry.Unlock()
	registry.factories[factory] = fn
}

// Make creates a new element with registered factory. If name is empty,
// unique name is generated from factory name, like "udpsrc0".
func Make(factory, name string) (Element, error) {
	registry.Lock()
	fn, ok := registry.factories[factory]
	if ok && name == "" {
		name = fmt.Sprintf("%s%d", factory, registry.counters[factory])
		registry.counters[factory]++
	}
	registry.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrNoFactory, "%q", factory)
	}
	e, err := fn(name)
	if err != nil {
		return nil, errors.Wrapf(err, "make %q", factory)
	}
	if e == nil {
		return nil, errors.Wrapf(ErrNoFactory, "%q returned no element", factory)
	}
	return e, nil
}

// Factories returns sorted names of registered factories.
func Factories() []string {
	registry.Lock()
	defer registry.Unlock()
	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns property specs of elements made by factory.
func Describe(factory string) ([]PropertySpec, error) {
	e, err := Make(factory, factory+"-describe")
	if err != nil {
		return nil, err
	}
	if c, ok := e.(Closer); ok {
		c.Close()
	}
	return e.Properties().Specs(), nil
}
