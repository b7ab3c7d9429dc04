// Package loader parses a declarative graph description into a
// running flowgraph by consulting a block-type registry, following
// spec.md §4.7's parse -> guard -> factory -> connect algorithm.
package loader

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// GraphDescription is the parsed form of one configuration file:
// `[[blocks]]`, `[[connections]]`, `[[message_connections]]`, an
// optional `[runtime]` section of periodic sender tasks, and an
// optional `[cli]` section describing user-facing parameters.
type GraphDescription struct {
	Blocks             []BlockDecl      `toml:"blocks"`
	Connections        []ConnectionDecl `toml:"connections"`
	MessageConnections []ConnectionDecl `toml:"message_connections"`
	Runtime            RuntimeDecl      `toml:"runtime"`
	CLI                CLIDecl          `toml:"cli"`
}

// BlockDecl is one `[[blocks]]` entry.
type BlockDecl struct {
	Name       string      `toml:"name"`
	Type       string      `toml:"type"`
	Dtype      string      `toml:"dtype"`
	Parameters []ParamDecl `toml:"parameters"`
	// Optional carries the guard expression gating this block: a bare
	// feature name requires it to be set in the condition map passed
	// to BuildGraph, a "!"-prefixed name requires it to be absent.
	// Empty means unconditional.
	Optional string `toml:"optional"`
}

// ParamDecl is one factory parameter: a name, a type tag
// ("string"/"u32"/"u64"/"f32"/"f64"/"bool"), and its value as parsed
// from TOML (string, int64, float64, or bool).
type ParamDecl struct {
	Name  string `toml:"name"`
	Type  string `toml:"type"`
	Value any    `toml:"value"`
}

// Params is the accessor view of a block's parameter list, looked up
// by name rather than position.
type Params []ParamDecl

func (p Params) find(name string) (ParamDecl, bool) {
	for _, d := range p {
		if d.Name == name {
			return d, true
		}
	}
	return ParamDecl{}, false
}

// String reads a string-valued parameter.
func (p Params) String(name string) (string, bool) {
	d, ok := p.find(name)
	if !ok {
		return "", false
	}
	s, ok := d.Value.(string)
	return s, ok
}

// U64 reads an integer-valued parameter as a uint64. TOML integers
// decode to int64; negative values are rejected.
func (p Params) U64(name string) (uint64, bool) {
	d, ok := p.find(name)
	if !ok {
		return 0, false
	}
	switch v := d.Value.(type) {
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

// F64 reads a numeric parameter as a float64, accepting either a TOML
// float or integer value.
func (p Params) F64(name string) (float64, bool) {
	d, ok := p.find(name)
	if !ok {
		return 0, false
	}
	switch v := d.Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Bool reads a bool-valued parameter.
func (p Params) Bool(name string) (bool, bool) {
	d, ok := p.find(name)
	if !ok {
		return false, false
	}
	b, ok := d.Value.(bool)
	return b, ok
}

// ConnectionDecl is one `[[connections]]` or `[[message_connections]]`
// entry. FromPort/ToPort default per spec.md §4.7 step 4/5: stream
// connections default to "output"/"input", message connections
// default ToPort to the From port's name — BuildGraph applies those
// defaults since they differ between the two sections.
type ConnectionDecl struct {
	From     string `toml:"from"`
	FromPort string `toml:"from_port"`
	To       string `toml:"to"`
	ToPort   string `toml:"to_port"`
	// Conditional is the same guard-expression convention as
	// BlockDecl.Optional.
	Conditional string `toml:"conditional"`
}

// RuntimeDecl is the optional `[runtime]` section: periodic
// message-sender tasks handed to internal/scheduler once the graph is
// running.
type RuntimeDecl struct {
	AsyncTasks []AsyncTaskDecl `toml:"async_tasks"`
}

// AsyncTaskDecl is one `[runtime] async_tasks` entry.
type AsyncTaskDecl struct {
	Block         string            `toml:"block"`
	Port          string            `toml:"port"`
	Task          string            `toml:"task"`
	IntervalSecs  float64           `toml:"interval_secs"`
	MessageFormat string            `toml:"message_format"`
	MessagePattern string           `toml:"message_pattern"`
	ExtraParams   map[string]string `toml:"extra_params"`
}

// CLIDecl is the optional `[cli]` section: a user-facing parameter
// schema. The core flowgraph engine does not interpret it — parsing
// command-line arguments from this schema is out of scope (spec.md
// §1's "CLI parsing" non-goal) — it is retained only so a
// configuration file round-trips through the loader without losing
// data a future CLI layer would need.
type CLIDecl struct {
	Args []CLIArgDecl `toml:"args"`
}

// CLIArgDecl is one `[cli] args` entry.
type CLIArgDecl struct {
	Name        string `toml:"name"`
	Type        string `toml:"type"`
	Default     any    `toml:"default"`
	Optional    bool   `toml:"optional"`
	Parser      string `toml:"parser"`
	Description string `toml:"description"`
}

// ParseGraphFile reads and parses a graph description from path.
func ParseGraphFile(path string) (*GraphDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: reading %s: %w", path, err)
	}
	return ParseGraph(data)
}

// ParseGraph parses a graph description from raw TOML bytes.
func ParseGraph(data []byte) (*GraphDescription, error) {
	var desc GraphDescription
	if err := toml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("loader: parse error: %w", err)
	}
	return &desc, nil
}
