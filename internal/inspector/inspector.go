// Package inspector implements the Model File Inspector (§4.4): file size,
// streamed SHA-256, and GGUF metadata extraction.
package inspector

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"

	gguf "github.com/gpustack/gguf-parser-go"

	"modeld/pkg/types"
)

// Parser is the narrow external interface onto GGUF parsing (out of scope
// per the purpose statement: "GGUF parsing library... invoked through a
// narrow interface"). GGUFDocument exposes just enough to derive
// ModelFileInfo without the caller needing to know the parser's own types.
type Parser interface {
	Parse(path string) (GGUFDocument, error)
}

// GGUFDocument is the minimal view of a parsed GGUF file this package needs.
type GGUFDocument interface {
	Architecture() string
	MetadataValue(key string) (string, bool)
	RawMetadata() map[string]json.RawMessage
	Tensors() []TensorInfo
}

// TensorInfo is one tensor's name and shape, used to derive BlockCount and
// ParameterCount the way §4.4 step 3 specifies.
type TensorInfo struct {
	Name       string
	Dimensions []uint64
}

// blockTensorNameRe matches llama.cpp's per-block tensor naming
// (e.g. "blk.0.attn_q.weight"), used to derive BlockCount.
var blockTensorNameRe = regexp.MustCompile(`^blk\.(\d+)\.`)

// Inspect reads path and produces its ModelFileInfo: streamed size + hash,
// then best-effort GGUF metadata via parser. A parse failure leaves
// Architecture/ContextLength/ParameterCount/Metadata null rather than
// failing the whole inspection, since file size and hash are always
// derivable from the raw bytes.
func Inspect(parser Parser, path string) (types.ModelFileInfo, error) {
	size, sum, err := hashFile(path)
	if err != nil {
		return types.ModelFileInfo{}, err
	}
	info := types.ModelFileInfo{FileSize: size, SHA256: sum}

	doc, err := parser.Parse(path)
	if err != nil {
		return info, nil
	}

	arch := doc.Architecture()
	if arch != "" {
		info.Architecture = &arch
	}
	if arch != "" {
		if v, ok := doc.MetadataValue(arch + ".context_length"); ok {
			var n int
			if _, scanErr := fmt.Sscanf(v, "%d", &n); scanErr == nil {
				info.ContextLength = &n
			}
		}
	}

	tensors := doc.Tensors()
	blocks := map[string]struct{}{}
	var paramTotal int64
	for _, t := range tensors {
		if m := blockTensorNameRe.FindStringSubmatch(t.Name); m != nil {
			blocks[m[1]] = struct{}{}
		}
		product := int64(1)
		for _, d := range t.Dimensions {
			product *= int64(d)
		}
		paramTotal += product
	}
	info.BlockCount = len(blocks)
	if len(tensors) > 0 {
		info.ParameterCount = &paramTotal
	}

	info.Metadata = types.FilterMetadata(doc.RawMetadata())
	return info, nil
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// ggufParser is the production Parser, backed by gpustack/gguf-parser-go.
type ggufParser struct{}

// NewParser returns the production GGUF Parser.
func NewParser() Parser { return ggufParser{} }

func (ggufParser) Parse(path string) (GGUFDocument, error) {
	f, err := gguf.ParseGGUFFile(path)
	if err != nil {
		return nil, newParseError(path, err)
	}
	return &ggufFileDocument{f: f}, nil
}

type ggufFileDocument struct {
	f *gguf.GGUFFile
}

func (d *ggufFileDocument) Architecture() string {
	return d.f.Architecture().Architecture
}

func (d *ggufFileDocument) MetadataValue(key string) (string, bool) {
	m, _ := d.f.Header.MetadataKV.Index([]string{key})
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.ValueString(), true
}

func (d *ggufFileDocument) RawMetadata() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(d.f.Header.MetadataKV))
	for _, kv := range d.f.Header.MetadataKV {
		b, err := json.Marshal(kv.ValueString())
		if err != nil {
			continue
		}
		out[kv.Key] = b
	}
	return out
}

func (d *ggufFileDocument) Tensors() []TensorInfo {
	out := make([]TensorInfo, 0, len(d.f.TensorInfos))
	for _, ti := range d.f.TensorInfos {
		dims := make([]uint64, 0, ti.NDimensions)
		for i := uint32(0); i < ti.NDimensions; i++ {
			dims = append(dims, ti.Dimensions[i])
		}
		out = append(out, TensorInfo{Name: ti.Name, Dimensions: dims})
	}
	return out
}

type parseError struct {
	path string
	err  error
}

func (e *parseError) Error() string { return fmt.Sprintf("parse gguf %s: %v", e.path, e.err) }
func (e *parseError) Unwrap() error { return e.err }

func newParseError(path string, err error) error { return &parseError{path: path, err: err} }
