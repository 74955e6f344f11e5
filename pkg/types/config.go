// Package types holds the value types shared across modeld: server
// configuration, model file metadata, and benchmark/detection results.
// Everything here is a plain value — no I/O, no mutexes.
package types

import "strings"

// FlashAttention is the tri-state flash-attention mode accepted by
// llama-server. FlashAttentionAuto is the zero value and is treated as
// "unspecified" throughout.
type FlashAttention string

const (
	FlashAttentionAuto FlashAttention = ""
	FlashAttentionOn   FlashAttention = "on"
	FlashAttentionOff  FlashAttention = "off"
)

// DefaultContextSize is the semantic default used when ContextSize is unset.
const DefaultContextSize = 4096

// DefaultHost is the bind address used when Host is unset.
const DefaultHost = "0.0.0.0"

// OverridePattern is an ordered list of "name=DEVICE" tensor override
// tokens. Two patterns are equal iff they contain identical strings in
// identical order; the type is kept distinct from []string so callers
// can't accidentally compare by identity alone.
type OverridePattern []string

// Equal reports whether p and other contain the same strings in the same order.
func (p OverridePattern) Equal(other OverridePattern) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the pattern for logs, e.g. "[ffn_up.*=CPU, ffn_down.*=CPU]".
func (p OverridePattern) String() string {
	return "[" + strings.Join(p, ", ") + "]"
}

// ServerConfig is the immutable configuration of a llama-server invocation.
// All fields are optional except ModelPath. Equality is structural across
// every field; use Equal rather than ==, since it carries slices.
type ServerConfig struct {
	Host           string          `json:"host,omitempty"`
	Port           int             `json:"port,omitempty"`
	ModelPath      string          `json:"modelPath"`
	Threads        int             `json:"threads,omitempty"`
	ContextSize    int             `json:"contextSize,omitempty"`
	Embeddings     bool            `json:"embeddings,omitempty"`
	FlashAttention FlashAttention  `json:"flashAttention,omitempty"`
	Mlock          bool            `json:"mlock,omitempty"`
	GPULayers      *int            `json:"gpuLayers,omitempty"`
	NCpuMoe        *int            `json:"nCpuMoe,omitempty"`
	OverrideTensors OverridePattern `json:"overrideTensors,omitempty"`
	Args           []string        `json:"args,omitempty"`
}

// EffectiveContextSize returns ContextSize, falling back to DefaultContextSize.
func (c ServerConfig) EffectiveContextSize() int {
	if c.ContextSize > 0 {
		return c.ContextSize
	}
	return DefaultContextSize
}

// EffectiveHost returns Host, falling back to DefaultHost.
func (c ServerConfig) EffectiveHost() string {
	if c.Host != "" {
		return c.Host
	}
	return DefaultHost
}

// EffectiveFlashAttention returns FlashAttention; the zero value already
// means "auto", so this exists purely for readability at call sites.
func (c ServerConfig) EffectiveFlashAttention() FlashAttention {
	return c.FlashAttention
}

// EffectiveEmbeddings returns Embeddings (default false).
func (c ServerConfig) EffectiveEmbeddings() bool {
	return c.Embeddings
}

// EffectiveGPULayers returns the configured GPU layer count and whether it
// was set at all. An absent value carries CPU-only semantics and is NOT
// equivalent to a numeric default.
func (c ServerConfig) EffectiveGPULayers() (value int, set bool) {
	if c.GPULayers == nil {
		return 0, false
	}
	return *c.GPULayers, true
}

// EffectiveNCpuMoe returns NCpuMoe, defaulting to 0 (no experts banished to CPU).
func (c ServerConfig) EffectiveNCpuMoe() int {
	if c.NCpuMoe == nil {
		return 0
	}
	return *c.NCpuMoe
}

// Equal performs full structural comparison across every field.
func (c ServerConfig) Equal(other ServerConfig) bool {
	if c.Host != other.Host ||
		c.Port != other.Port ||
		c.ModelPath != other.ModelPath ||
		c.Threads != other.Threads ||
		c.ContextSize != other.ContextSize ||
		c.Embeddings != other.Embeddings ||
		c.FlashAttention != other.FlashAttention ||
		c.Mlock != other.Mlock {
		return false
	}
	if !intPtrEqual(c.GPULayers, other.GPULayers) || !intPtrEqual(c.NCpuMoe, other.NCpuMoe) {
		return false
	}
	if !c.OverrideTensors.Equal(other.OverrideTensors) {
		return false
	}
	if len(c.Args) != len(other.Args) {
		return false
	}
	for i := range c.Args {
		if c.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Accept reports whether a server already running with config c can satisfy
// a pending request whose desired configuration is other. It is reflexive
// but not symmetric: a pre-order on "can this host serve this demand?".
func (c ServerConfig) Accept(other ServerConfig) bool {
	if c.Equal(other) {
		return true
	}
	if c.ModelPath != other.ModelPath {
		return false
	}
	if c.EffectiveContextSize() < other.EffectiveContextSize() {
		return false
	}
	if c.EffectiveFlashAttention() != other.EffectiveFlashAttention() {
		return false
	}
	if c.EffectiveEmbeddings() != other.EffectiveEmbeddings() {
		return false
	}
	cGPU, cSet := c.EffectiveGPULayers()
	oGPU, oSet := other.EffectiveGPULayers()
	if oSet && !cSet {
		return false
	}
	if cSet && oSet && cGPU < oGPU {
		return false
	}
	if c.EffectiveNCpuMoe() > other.EffectiveNCpuMoe() {
		return false
	}
	if !c.OverrideTensors.Equal(other.OverrideTensors) {
		return false
	}
	if len(c.Args) != len(other.Args) {
		return false
	}
	for i := range c.Args {
		if c.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

// WithGPULayers returns a copy of c with GPULayers set to v.
func (c ServerConfig) WithGPULayers(v int) ServerConfig {
	out := c
	vv := v
	out.GPULayers = &vv
	return out
}

// WithNCpuMoe returns a copy of c with NCpuMoe set to v.
func (c ServerConfig) WithNCpuMoe(v int) ServerConfig {
	out := c
	vv := v
	out.NCpuMoe = &vv
	return out
}

// WithOverrideTensors returns a copy of c with OverrideTensors set to p.
func (c ServerConfig) WithOverrideTensors(p OverridePattern) ServerConfig {
	out := c
	out.OverrideTensors = append(OverridePattern(nil), p...)
	return out
}
