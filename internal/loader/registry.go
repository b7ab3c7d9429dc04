package loader

import (
	"fmt"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/blocks"
)

// Deps carries the external collaborators a handful of factories need
// beyond their declared parameters: the control endpoint's
// notification broadcaster and the supervisor's reload requester.
// Per spec.md's design note on the "global mutable channel", these are
// passed in explicitly rather than reached through package-level
// state.
type Deps struct {
	Broadcaster blocks.Broadcaster
	Requester   blocks.ReloadRequester
}

// Factory builds one configured kernel from a block declaration,
// returning an error for anything it cannot build from it. The
// default NullSource and Throttle factories read `limit` and
// `sample_rate` as optional: a missing parameter, or one whose value
// does not convert to the expected number, reads as 0 and is not
// reported as an error.
type Factory func(decl BlockDecl, deps Deps) (block.Kernel, error)

// Registry maps a configuration's block `type` string to the factory
// that builds it, mirroring the teacher's `block_registry.rs`
// name -> constructor table but as a plain Go map instead of a macro-
// generated match arm.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for typeName.
func (r *Registry) Register(typeName string, f Factory) {
	r.factories[typeName] = f
}

// Lookup returns the factory registered for typeName.
func (r *Registry) Lookup(typeName string) (Factory, bool) {
	f, ok := r.factories[typeName]
	return f, ok
}

// NewDefaultRegistry returns a Registry with every block in
// spec.md's supplemented demonstration set pre-registered: NullSource,
// NullSink, Throttle (each element-type generic, dispatched on
// `dtype`), Ping, Echo, FlowgraphController, and WebsocketPmtSink.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("NullSource", nullSourceFactory)
	r.Register("NullSink", nullSinkFactory)
	r.Register("Throttle", throttleFactory)
	r.Register("Ping", func(decl BlockDecl, _ Deps) (block.Kernel, error) {
		return blocks.NewPing(decl.Name), nil
	})
	r.Register("Echo", func(decl BlockDecl, _ Deps) (block.Kernel, error) {
		return blocks.NewEcho(decl.Name), nil
	})
	r.Register("FlowgraphController", func(decl BlockDecl, deps Deps) (block.Kernel, error) {
		return blocks.NewFlowgraphController(deps.Requester), nil
	})
	r.Register("WebsocketPmtSink", func(decl BlockDecl, deps Deps) (block.Kernel, error) {
		return blocks.NewWebsocketPmtSink(decl.Name, deps.Broadcaster), nil
	})
	return r
}

// elemTypeError reports a dtype string no generic factory recognizes,
// matching spec.md's "unknown element types on generic blocks ... are
// hard errors".
func elemTypeError(blockType, dtype string) error {
	return fmt.Errorf("loader: block type %q has unknown element type %q", blockType, dtype)
}

func nullSourceFactory(decl BlockDecl, _ Deps) (block.Kernel, error) {
	limit, _ := Params(decl.Parameters).U64("limit")
	switch decl.Dtype {
	case "u8":
		return blocks.NewNullSource[uint8](decl.Name, limit), nil
	case "i8":
		return blocks.NewNullSource[int8](decl.Name, limit), nil
	case "u16":
		return blocks.NewNullSource[uint16](decl.Name, limit), nil
	case "i16":
		return blocks.NewNullSource[int16](decl.Name, limit), nil
	case "u32":
		return blocks.NewNullSource[uint32](decl.Name, limit), nil
	case "i32":
		return blocks.NewNullSource[int32](decl.Name, limit), nil
	case "u64":
		return blocks.NewNullSource[uint64](decl.Name, limit), nil
	case "i64":
		return blocks.NewNullSource[int64](decl.Name, limit), nil
	case "f32":
		return blocks.NewNullSource[float32](decl.Name, limit), nil
	case "f64", "":
		return blocks.NewNullSource[float64](decl.Name, limit), nil
	case "bool":
		return blocks.NewNullSource[bool](decl.Name, limit), nil
	case "Complex32":
		return blocks.NewNullSource[complex64](decl.Name, limit), nil
	case "Complex64":
		return blocks.NewNullSource[complex128](decl.Name, limit), nil
	default:
		return nil, elemTypeError("NullSource", decl.Dtype)
	}
}

func nullSinkFactory(decl BlockDecl, _ Deps) (block.Kernel, error) {
	switch decl.Dtype {
	case "u8":
		return blocks.NewNullSink[uint8](decl.Name), nil
	case "i8":
		return blocks.NewNullSink[int8](decl.Name), nil
	case "u16":
		return blocks.NewNullSink[uint16](decl.Name), nil
	case "i16":
		return blocks.NewNullSink[int16](decl.Name), nil
	case "u32":
		return blocks.NewNullSink[uint32](decl.Name), nil
	case "i32":
		return blocks.NewNullSink[int32](decl.Name), nil
	case "u64":
		return blocks.NewNullSink[uint64](decl.Name), nil
	case "i64":
		return blocks.NewNullSink[int64](decl.Name), nil
	case "f32":
		return blocks.NewNullSink[float32](decl.Name), nil
	case "f64", "":
		return blocks.NewNullSink[float64](decl.Name), nil
	case "bool":
		return blocks.NewNullSink[bool](decl.Name), nil
	case "Complex32":
		return blocks.NewNullSink[complex64](decl.Name), nil
	case "Complex64":
		return blocks.NewNullSink[complex128](decl.Name), nil
	default:
		return nil, elemTypeError("NullSink", decl.Dtype)
	}
}

func throttleFactory(decl BlockDecl, _ Deps) (block.Kernel, error) {
	rate, _ := Params(decl.Parameters).F64("sample_rate")
	switch decl.Dtype {
	case "u8":
		return blocks.NewThrottle[uint8](decl.Name, rate), nil
	case "i8":
		return blocks.NewThrottle[int8](decl.Name, rate), nil
	case "u16":
		return blocks.NewThrottle[uint16](decl.Name, rate), nil
	case "i16":
		return blocks.NewThrottle[int16](decl.Name, rate), nil
	case "u32":
		return blocks.NewThrottle[uint32](decl.Name, rate), nil
	case "i32":
		return blocks.NewThrottle[int32](decl.Name, rate), nil
	case "u64":
		return blocks.NewThrottle[uint64](decl.Name, rate), nil
	case "i64":
		return blocks.NewThrottle[int64](decl.Name, rate), nil
	case "f32":
		return blocks.NewThrottle[float32](decl.Name, rate), nil
	case "f64", "":
		return blocks.NewThrottle[float64](decl.Name, rate), nil
	case "bool":
		return blocks.NewThrottle[bool](decl.Name, rate), nil
	case "Complex32":
		return blocks.NewThrottle[complex64](decl.Name, rate), nil
	case "Complex64":
		return blocks.NewThrottle[complex128](decl.Name, rate), nil
	default:
		return nil, elemTypeError("Throttle", decl.Dtype)
	}
}
