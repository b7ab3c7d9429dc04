package port

import (
	"fmt"
	"reflect"

	"github.com/axiom-sdr/flowgraphd/internal/pmt"
)

// edgeFactory builds a type-erased StreamEdge of a specific element
// type at a given capacity.
type edgeFactory func(capacity int) StreamEdge

// elemTypes maps the element types generic blocks may declare (via
// the loader's `dtype` field) to the factory that instantiates a ring
// buffer of that type. Go's generics can't be parameterized on a
// reflect.Type discovered at load time, so this registry is the
// dispatch point: every concrete element type a loaded graph can use
// must be registered here once.
var elemTypes = map[reflect.Type]edgeFactory{
	reflect.TypeOf(uint8(0)):    func(n int) StreamEdge { e, _ := NewStreamEdge[uint8](n); return e },
	reflect.TypeOf(int8(0)):     func(n int) StreamEdge { e, _ := NewStreamEdge[int8](n); return e },
	reflect.TypeOf(uint16(0)):   func(n int) StreamEdge { e, _ := NewStreamEdge[uint16](n); return e },
	reflect.TypeOf(int16(0)):    func(n int) StreamEdge { e, _ := NewStreamEdge[int16](n); return e },
	reflect.TypeOf(uint32(0)):   func(n int) StreamEdge { e, _ := NewStreamEdge[uint32](n); return e },
	reflect.TypeOf(int32(0)):    func(n int) StreamEdge { e, _ := NewStreamEdge[int32](n); return e },
	reflect.TypeOf(uint64(0)):   func(n int) StreamEdge { e, _ := NewStreamEdge[uint64](n); return e },
	reflect.TypeOf(int64(0)):    func(n int) StreamEdge { e, _ := NewStreamEdge[int64](n); return e },
	reflect.TypeOf(float32(0)):  func(n int) StreamEdge { e, _ := NewStreamEdge[float32](n); return e },
	reflect.TypeOf(float64(0)):  func(n int) StreamEdge { e, _ := NewStreamEdge[float64](n); return e },
	reflect.TypeOf(complex64(0)):  func(n int) StreamEdge { e, _ := NewStreamEdge[complex64](n); return e },
	reflect.TypeOf(complex128(0)): func(n int) StreamEdge { e, _ := NewStreamEdge[complex128](n); return e },
	reflect.TypeOf(false):       func(n int) StreamEdge { e, _ := NewStreamEdge[bool](n); return e },
	reflect.TypeOf(pmt.Pmt{}):   func(n int) StreamEdge { e, _ := NewStreamEdge[pmt.Pmt](n); return e },
}

// NewStreamEdgeFor builds a type-erased stream edge for elemType,
// looked up in the registry of element types the engine knows how to
// move through a ring buffer. Block kernels with a fixed, known
// element type should call NewStreamEdge directly instead; this path
// exists for the declarative loader, which only has a reflect.Type
// parsed from a graph description's `dtype` field.
func NewStreamEdgeFor(elemType reflect.Type, capacity int) (StreamEdge, error) {
	factory, ok := elemTypes[elemType]
	if !ok {
		return nil, fmt.Errorf("port: no stream edge registered for element type %s", elemType)
	}
	return factory(capacity), nil
}

// RegisterElemType adds support for a new stream element type, for
// blocks defined outside this module that need a type NewStreamEdgeFor
// doesn't already know.
func RegisterElemType(elemType reflect.Type, capacity0 func(capacity int) StreamEdge) {
	elemTypes[elemType] = capacity0
}
