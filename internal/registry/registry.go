// Package registry implements the Spec Registry (§4.6): an in-memory index
// mapping model identifiers and a requested context size to a prepared
// benchmark entry, in insertion order.
package registry

import (
	"regexp"
	"strings"
	"sync"

	"modeld/pkg/types"
)

// quantSuffixRe strips a trailing quantization suffix from a lowercased
// basename, e.g. "smollm2-135m-instruct-q4_k_m" -> "smollm2-135m-instruct".
var quantSuffixRe = regexp.MustCompile(`-q\d+[_k].*$`)

// entry is one benchmark indexed against the model identity that produced
// it: a config plus everything selectSpec can match against.
type entry struct {
	config   types.ServerConfig
	sha256   string
	aliases  []string
	filename string // lowercased, .gguf stripped
}

func (e entry) accepts(input string) bool {
	if input == e.sha256 {
		return true
	}
	for _, a := range e.aliases {
		if input == a {
			return true
		}
	}
	if e.filename == "" {
		return false
	}
	if input == e.filename {
		return true
	}
	return input == quantSuffixRe.ReplaceAllString(e.filename, "")
}

// Registry is a thread-safe, insertion-ordered index of detection results.
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// AddDetectionResult indexes every benchmark in result, associating each
// with sha256 and the optional aliases and model filename. modelFilename
// may be empty if unknown; it participates in selection by full name and by
// quantization-stripped name, both lowercased.
func (r *Registry) AddDetectionResult(result types.DetectionResult, aliases []string, modelFilename string) {
	filename := ""
	if modelFilename != "" {
		base := modelFilename
		if i := strings.LastIndexByte(base, '/'); i >= 0 {
			base = base[i+1:]
		}
		base = strings.TrimSuffix(base, ".gguf")
		filename = strings.ToLower(base)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range result.Benchmarks {
		r.entries = append(r.entries, entry{
			config:   b.Config,
			sha256:   result.FileInfo.SHA256,
			aliases:  append([]string(nil), aliases...),
			filename: filename,
		})
	}
}

// SelectSpec returns the first entry, in insertion order, whose config's
// effective context size is at least contextSize and which accepts input.
// contextSize of 0 is treated as the default (types.DefaultContextSize).
// Returns the zero ServerConfig and false if nothing matches.
func (r *Registry) SelectSpec(input string, contextSize int) (types.ServerConfig, bool) {
	if contextSize <= 0 {
		contextSize = types.DefaultContextSize
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.config.EffectiveContextSize() < contextSize {
			continue
		}
		if e.accepts(input) {
			return e.config, true
		}
	}
	return types.ServerConfig{}, false
}
