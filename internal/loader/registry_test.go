package loader

import (
	"testing"

	"github.com/axiom-sdr/flowgraphd/internal/block"
)

func TestDefaultRegistry_BuildsEveryDemonstrationBlock(t *testing.T) {
	r := NewDefaultRegistry()
	cases := []BlockDecl{
		{Name: "src", Type: "NullSource", Dtype: "u8"},
		{Name: "sink", Type: "NullSink", Dtype: "f32"},
		{Name: "thr", Type: "Throttle", Dtype: "u32"},
		{Name: "ping", Type: "Ping"},
		{Name: "ctrl", Type: "FlowgraphController"},
		{Name: "ws", Type: "WebsocketPmtSink"},
	}
	for _, decl := range cases {
		t.Run(decl.Type, func(t *testing.T) {
			factory, ok := r.Lookup(decl.Type)
			if !ok {
				t.Fatalf("no factory registered for %q", decl.Type)
			}
			kernel, err := factory(decl, Deps{})
			if err != nil {
				t.Fatalf("factory: %v", err)
			}
			if kernel == nil {
				t.Fatal("factory returned nil kernel")
			}
			var _ block.Kernel = kernel
		})
	}
}

func TestRegistry_LookupMissingType(t *testing.T) {
	r := NewDefaultRegistry()
	if _, ok := r.Lookup("wifi::Mac"); ok {
		t.Error("expected no factory for an out-of-scope DSP block type")
	}
}

func TestNullSourceFactory_UnknownDtype(t *testing.T) {
	r := NewDefaultRegistry()
	factory, _ := r.Lookup("NullSource")
	_, err := factory(BlockDecl{Name: "x", Type: "NullSource", Dtype: "nope"}, Deps{})
	if err == nil {
		t.Fatal("expected error for unknown dtype")
	}
}
