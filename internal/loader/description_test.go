package loader

import "testing"

const sampleGraph = `
[[blocks]]
name = "ctrl"
type = "FlowgraphController"

[[blocks]]
name = "src"
type = "NullSource"
dtype = "u8"
parameters = [{ name = "limit", type = "u64", value = 100 }]

[[blocks]]
name = "sink"
type = "NullSink"
dtype = "u8"

[[blocks]]
name = "wifi_only"
type = "NullSink"
dtype = "u8"
optional = "wifi"

[[connections]]
from = "src"
to = "sink"

[[message_connections]]
from = "ctrl"
from_port = "rx_out"
to = "sink"
to_port = "in"

[runtime]
async_tasks = [
  { block = "ctrl", port = "rx", interval_secs = 0.05, message_pattern = "hello {seq}" },
]
`

func TestParseGraph_FullShape(t *testing.T) {
	desc, err := ParseGraph([]byte(sampleGraph))
	if err != nil {
		t.Fatalf("ParseGraph: %v", err)
	}
	if len(desc.Blocks) != 4 {
		t.Fatalf("len(Blocks) = %d, want 4", len(desc.Blocks))
	}
	if desc.Blocks[1].Type != "NullSource" || desc.Blocks[1].Dtype != "u8" {
		t.Errorf("unexpected block 1: %+v", desc.Blocks[1])
	}
	limit, ok := Params(desc.Blocks[1].Parameters).U64("limit")
	if !ok || limit != 100 {
		t.Errorf("limit param = %v, ok=%v, want 100, true", limit, ok)
	}
	if desc.Blocks[3].Optional != "wifi" {
		t.Errorf("Optional = %q, want \"wifi\"", desc.Blocks[3].Optional)
	}
	if len(desc.Connections) != 1 || desc.Connections[0].From != "src" {
		t.Errorf("unexpected connections: %+v", desc.Connections)
	}
	if len(desc.MessageConnections) != 1 || desc.MessageConnections[0].FromPort != "rx_out" {
		t.Errorf("unexpected message connections: %+v", desc.MessageConnections)
	}
	if len(desc.Runtime.AsyncTasks) != 1 || desc.Runtime.AsyncTasks[0].Block != "ctrl" {
		t.Errorf("unexpected runtime tasks: %+v", desc.Runtime.AsyncTasks)
	}
}

func TestParams_Accessors(t *testing.T) {
	params := Params{
		{Name: "name", Type: "string", Value: "hello"},
		{Name: "count", Type: "u64", Value: int64(7)},
		{Name: "rate", Type: "f64", Value: 2.5},
		{Name: "enabled", Type: "bool", Value: true},
	}

	if s, ok := params.String("name"); !ok || s != "hello" {
		t.Errorf("String(name) = %q, %v", s, ok)
	}
	if n, ok := params.U64("count"); !ok || n != 7 {
		t.Errorf("U64(count) = %d, %v", n, ok)
	}
	if r, ok := params.F64("rate"); !ok || r != 2.5 {
		t.Errorf("F64(rate) = %f, %v", r, ok)
	}
	if b, ok := params.Bool("enabled"); !ok || !b {
		t.Errorf("Bool(enabled) = %v, %v", b, ok)
	}
	if _, ok := params.String("missing"); ok {
		t.Error("String(missing) = ok, want not found")
	}
}

func TestParseGraph_RejectsMalformedTOML(t *testing.T) {
	_, err := ParseGraph([]byte("not = valid = toml ="))
	if err == nil {
		t.Fatal("expected a parse error")
	}
}
