package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	errInvalidGLTFVersion = errors.New("invalid glTF version: must be 2.0")
	errInvalidGLBMagic    = errors.New("invalid GLB magic number")
	errInvalidGLBVersion  = errors.New("invalid GLB version: must be 2")
	errMissingJSONChunk   = errors.New("GLB file missing JSON chunk")
	errInvalidBufferURI   = errors.New("invalid buffer URI")
	errBufferSizeMismatch = errors.New("buffer size mismatch")
)

// gltfParser decodes one glTF or GLB document with its buffers and reads
// typed accessor data out of it.
type gltfParser struct {
	baseDir  string
	document *gltfDocument
	glbChunk []byte
}

// parseGLTFFile reads path, detecting GLB by extension or magic number.
// Relative buffer URIs resolve against the file's directory.
func parseGLTFFile(path string) (*gltfParser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	p := &gltfParser{baseDir: filepath.Dir(path)}
	isGLB := strings.EqualFold(filepath.Ext(path), ".glb") ||
		(len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == gltfGLBMagic)
	if err := p.parse(data, isGLB); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return p, nil
}

// parseGLTFReader decodes a document from r. External buffer URIs resolve
// against baseDir.
func parseGLTFReader(r io.Reader, isGLB bool, baseDir string) (*gltfParser, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading glTF data: %w", err)
	}
	p := &gltfParser{baseDir: baseDir}
	if err := p.parse(data, isGLB); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *gltfParser) parse(data []byte, isGLB bool) error {
	if isGLB {
		var err error
		if data, err = p.splitGLB(data); err != nil {
			return err
		}
	}

	var doc gltfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding glTF JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return errInvalidGLTFVersion
	}
	if err := p.loadBuffers(&doc); err != nil {
		return fmt.Errorf("loading buffers: %w", err)
	}
	p.document = &doc
	return nil
}

// splitGLB returns the JSON chunk and keeps the BIN chunk for buffer 0.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
func (p *gltfParser) splitGLB(data []byte) ([]byte, error) {
	if len(data) < 12 {
		return nil, errors.New("GLB file too small")
	}
	r := bytes.NewReader(data)

	var header gltfGLBHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("reading GLB header: %w", err)
	}
	if header.Magic != gltfGLBMagic {
		return nil, errInvalidGLBMagic
	}
	if header.Version != gltfGLBVersion {
		return nil, errInvalidGLBVersion
	}

	var jsonData []byte
	for {
		var ch gltfGLBChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("reading chunk header: %w", err)
		}
		chunk := make([]byte, ch.ChunkLength)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("reading chunk data: %w", err)
		}
		switch ch.ChunkType {
		case gltfGLBChunkJSON:
			jsonData = chunk
		case gltfGLBChunkBIN:
			p.glbChunk = chunk
		}
	}
	if jsonData == nil {
		return nil, errMissingJSONChunk
	}
	return jsonData, nil
}

func (p *gltfParser) loadBuffers(doc *gltfDocument) error {
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]
		switch {
		case buf.URI == "" && i == 0 && p.glbChunk != nil:
			buf.Data = p.glbChunk
		case buf.URI == "":
			return fmt.Errorf("buffer %d has no URI and no GLB binary chunk", i)
		case strings.HasPrefix(buf.URI, "data:"):
			data, err := decodeDataURI(buf.URI)
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.Data = data
		default:
			data, err := os.ReadFile(filepath.Join(p.baseDir, buf.URI))
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.Data = data
		}
		if len(buf.Data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: %w", i, errBufferSizeMismatch)
		}
	}
	return nil
}

// decodeDataURI decodes data:[<mediatype>];base64,<data>.
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.Index(uri, ",")
	if comma < 0 {
		return nil, errInvalidBufferURI
	}
	if header := uri[5:comma]; !strings.Contains(header, "base64") {
		return nil, fmt.Errorf("unsupported data URI encoding: %s", header)
	}
	data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	return data, nil
}

// accessorData copies an accessor's elements out of its buffer view,
// removing any stride.
func (p *gltfParser) accessorData(index int) (*gltfAccessor, []byte, error) {
	if index < 0 || index >= len(p.document.Accessors) {
		return nil, nil, fmt.Errorf("accessor index %d out of range", index)
	}
	acc := &p.document.Accessors[index]
	if acc.Sparse != nil {
		return nil, nil, errors.New("sparse accessors are not supported")
	}
	if acc.BufferView == nil || *acc.BufferView >= len(p.document.BufferViews) {
		return nil, nil, fmt.Errorf("accessor %d has no valid bufferView", index)
	}
	bv := &p.document.BufferViews[*acc.BufferView]
	if bv.Buffer >= len(p.document.Buffers) {
		return nil, nil, fmt.Errorf("bufferView references missing buffer %d", bv.Buffer)
	}
	buf := p.document.Buffers[bv.Buffer].Data

	elem := componentSize(acc.ComponentType) * componentCount(acc.Type)
	if elem == 0 {
		return nil, nil, fmt.Errorf("accessor %d: unsupported layout %s/%d", index, acc.Type, acc.ComponentType)
	}
	stride := elem
	if bv.ByteStride != nil && *bv.ByteStride > 0 {
		stride = *bv.ByteStride
	}
	start := bv.ByteOffset + acc.ByteOffset
	if acc.Count > 0 && start+(acc.Count-1)*stride+elem > len(buf) {
		return nil, nil, fmt.Errorf("accessor %d: %w", index, errBufferSizeMismatch)
	}

	out := make([]byte, acc.Count*elem)
	for i := 0; i < acc.Count; i++ {
		src := start + i*stride
		copy(out[i*elem:(i+1)*elem], buf[src:src+elem])
	}
	return acc, out, nil
}

// readVec3 reads a VEC3 FLOAT accessor.
func (p *gltfParser) readVec3(index int) ([]mgl32.Vec3, error) {
	acc, data, err := p.accessorData(index)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeVec3 || acc.ComponentType != gltfComponentTypeFloat {
		return nil, fmt.Errorf("accessor %d is not VEC3 FLOAT: type=%s, componentType=%d", index, acc.Type, acc.ComponentType)
	}
	out := make([]mgl32.Vec3, acc.Count)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// readIndices reads a SCALAR accessor of unsigned bytes, shorts or ints.
func (p *gltfParser) readIndices(index int) ([]uint32, error) {
	acc, data, err := p.accessorData(index)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeScalar {
		return nil, fmt.Errorf("index accessor %d is not SCALAR: type=%s", index, acc.Type)
	}
	out := make([]uint32, acc.Count)
	switch acc.ComponentType {
	case gltfComponentTypeUnsignedByte:
		for i, b := range data {
			out[i] = uint32(b)
		}
	case gltfComponentTypeUnsignedShort:
		for i := range out {
			out[i] = uint32(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case gltfComponentTypeUnsignedInt:
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
	default:
		return nil, fmt.Errorf("unsupported index component type: %d", acc.ComponentType)
	}
	return out, nil
}

func componentSize(componentType int) int {
	switch componentType {
	case gltfComponentTypeByte, gltfComponentTypeUnsignedByte:
		return 1
	case gltfComponentTypeShort, gltfComponentTypeUnsignedShort:
		return 2
	case gltfComponentTypeUnsignedInt, gltfComponentTypeFloat:
		return 4
	default:
		return 0
	}
}

func componentCount(accessorType string) int {
	switch accessorType {
	case gltfAccessorTypeScalar:
		return 1
	case gltfAccessorTypeVec2:
		return 2
	case gltfAccessorTypeVec3:
		return 3
	case gltfAccessorTypeVec4:
		return 4
	default:
		return 0
	}
}
