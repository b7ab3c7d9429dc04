package port

import "github.com/axiom-sdr/flowgraphd/internal/ring"

// typedEdge adapts a *ring.Buffer[T] to the type-erased StreamEdge
// interface used by the scheduler.
type typedEdge[T any] struct {
	buf *ring.Buffer[T]
}

// NewStreamEdge creates the ring buffer backing one stream connection
// and returns it as a type-erased StreamEdge alongside the concrete
// *ring.Buffer[T] for the two connected blocks' Work implementations
// to use directly.
func NewStreamEdge[T any](capacity int) (StreamEdge, *ring.Buffer[T]) {
	buf := ring.New[T](capacity)
	return typedEdge[T]{buf: buf}, buf
}

func (e typedEdge[T]) Len() int       { return e.buf.Len() }
func (e typedEdge[T]) Free() int      { return e.buf.Free() }
func (e typedEdge[T]) Capacity() int  { return e.buf.Capacity() }
func (e typedEdge[T]) CloseWrite()    { e.buf.CloseWrite() }
func (e typedEdge[T]) Closed() bool   { return e.buf.Closed() }
func (e typedEdge[T]) Drained() bool  { return e.buf.Drained() }
func (e typedEdge[T]) Backing() any   { return e.buf }
