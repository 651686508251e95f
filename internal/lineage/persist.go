package lineage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"path/filepath"

	"github.com/banshee-data/lineage/internal/monitoring"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Track file layout, little-endian:
//
//	header:  magic "CLTM" | version u32 | flags u32 | dataset uuid [16]
//	         body length u64 | raw length u64 | crc32 u32 (of raw body)
//	body:    frame count u32
//	         per frame: cell count u32, cells (id u32, size u32, x y z f64,
//	                    has vertex u8, vertex u32)
//	                    vertex count u32, vertex ids u32
//	         per frame pair: edge count u32, edges (near u32, far u32,
//	                    linked u8, overlap f32, distance f32)
//
// The body is zstd-compressed when flagZstd is set. Vertex size and center
// are derived from the cells on load.
const (
	trackMagic = "CLTM"

	// FormatVersion is the track file version written by Export. Import
	// rejects every other version.
	FormatVersion = 2

	flagZstd = 1 << 0

	// maxRawBody bounds the decompressed body accepted by ImportFrom.
	maxRawBody = 1 << 30
)

type trackHeader struct {
	Magic   [4]byte
	Version uint32
	Flags   uint32
	Dataset [16]byte
	BodyLen uint64
	RawLen  uint64
	CRC     uint32
}

// Export writes the whole TrackMap to path. The file is written next to the
// target and renamed over it, so a failed export leaves the old file intact.
func (p *Processor) Export(path string) error {
	var buf bytes.Buffer
	if err := p.ExportTo(&buf); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := p.cfg.FS.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create track file directory: %w", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp")
	if err := p.cfg.FS.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write track file: %w", err)
	}
	if err := p.cfg.FS.Rename(tmp, path); err != nil {
		_ = p.cfg.FS.Remove(tmp)
		return fmt.Errorf("rename track file: %w", err)
	}
	monitoring.Logf("exported track map to %s (%d bytes)", path, buf.Len())
	return nil
}

// ExportTo writes the track file encoding of the TrackMap to w.
func (p *Processor) ExportTo(w io.Writer) error {
	p.tm.mu.Lock()
	raw, id := encodeBody(p.tm), p.tm.id
	p.tm.mu.Unlock()
	return p.writeTrack(w, raw, id)
}

// Encoded is a track file encoding with the dataset id and per-frame
// statistics of the state it was taken from.
type Encoded struct {
	Data    []byte
	Dataset uuid.UUID
	Stats   []FrameStats
}

// Encode returns the track file encoding of the TrackMap. The body, dataset
// id and statistics are read under one lock, so they always describe the
// same state.
func (p *Processor) Encode() (Encoded, error) {
	p.tm.mu.Lock()
	raw, id, stats := encodeBody(p.tm), p.tm.id, p.tm.stats()
	p.tm.mu.Unlock()

	var buf bytes.Buffer
	if err := p.writeTrack(&buf, raw, id); err != nil {
		return Encoded{}, err
	}
	return Encoded{Data: buf.Bytes(), Dataset: id, Stats: stats}, nil
}

// writeTrack frames an encoded body with the track header and writes it.
func (p *Processor) writeTrack(w io.Writer, raw []byte, id uuid.UUID) error {
	hdr := trackHeader{
		Version: FormatVersion,
		Dataset: id,
		RawLen:  uint64(len(raw)),
		CRC:     crc32.ChecksumIEEE(raw),
	}
	copy(hdr.Magic[:], trackMagic)

	body := raw
	if level := p.cfg.CompressionLevel; level > 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		body = enc.EncodeAll(raw, nil)
		_ = enc.Close()
		hdr.Flags |= flagZstd
	}
	hdr.BodyLen = uint64(len(body))

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write track header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write track body: %w", err)
	}
	return nil
}

// Import replaces the TrackMap with the contents of the track file at path.
// On any error the map is left exactly as it was.
func (p *Processor) Import(path string) error {
	data, err := p.cfg.FS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read track file: %w", err)
	}
	if err := p.ImportFrom(bytes.NewReader(data)); err != nil {
		monitoring.Logf("rejected track file %s: %v", path, err)
		return err
	}
	monitoring.Logf("imported track map from %s", path)
	return nil
}

// ImportFrom decodes a track file from r into a scratch map and swaps it in
// only when the whole file is valid.
func (p *Processor) ImportFrom(r io.Reader) error {
	var hdr trackHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: header: %v", ErrInvalidFormat, err)
	}
	if string(hdr.Magic[:]) != trackMagic {
		return fmt.Errorf("%w: bad magic %q", ErrInvalidFormat, hdr.Magic[:])
	}
	if hdr.Version != FormatVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrVersion, hdr.Version, FormatVersion)
	}
	if hdr.RawLen > maxRawBody || hdr.BodyLen > maxRawBody {
		return fmt.Errorf("%w: body too large", ErrInvalidFormat)
	}

	body, err := io.ReadAll(io.LimitReader(r, int64(hdr.BodyLen)))
	if err != nil {
		return fmt.Errorf("%w: body: %v", ErrInvalidFormat, err)
	}
	if uint64(len(body)) != hdr.BodyLen {
		return fmt.Errorf("%w: truncated body (%d of %d bytes)", ErrInvalidFormat, len(body), hdr.BodyLen)
	}

	raw := body
	if hdr.Flags&flagZstd != 0 {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxRawBody))
		if err != nil {
			return fmt.Errorf("create zstd decoder: %w", err)
		}
		raw, err = dec.DecodeAll(body, make([]byte, 0, hdr.RawLen))
		dec.Close()
		if err != nil {
			return fmt.Errorf("%w: decompress: %v", ErrInvalidFormat, err)
		}
	}
	if uint64(len(raw)) != hdr.RawLen {
		return fmt.Errorf("%w: body length %d, header says %d", ErrInvalidFormat, len(raw), hdr.RawLen)
	}
	if crc := crc32.ChecksumIEEE(raw); crc != hdr.CRC {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidFormat)
	}

	scratch, err := decodeBody(raw)
	if err != nil {
		return err
	}
	scratch.id = uuid.UUID(hdr.Dataset)

	p.tm.mu.Lock()
	p.tm.swap(scratch)
	p.tm.mu.Unlock()
	return nil
}

func encodeBody(tm *TrackMap) []byte {
	var b bytes.Buffer
	w := func(v any) { _ = binary.Write(&b, binary.LittleEndian, v) }

	w(uint32(len(tm.frames)))
	for f, cells := range tm.frames {
		w(uint32(len(cells)))
		for _, c := range cells.Sorted() {
			vid, has := c.Vertex()
			var hasByte uint8
			if has {
				hasByte = 1
			}
			w(uint32(c.ID))
			w(c.Size)
			w([3]float64{c.Center.X, c.Center.Y, c.Center.Z})
			w(hasByte)
			w(uint32(vid))
		}
		ids := tm.vertices[f].IDs()
		w(uint32(len(ids)))
		for _, id := range ids {
			w(uint32(id))
		}
	}
	for _, g := range tm.graphs {
		edges := g.Edges()
		w(uint32(len(edges)))
		for _, e := range edges {
			var linked uint8
			if e.Link.Linked {
				linked = 1
			}
			w(uint32(e.Near))
			w(uint32(e.Far))
			w(linked)
			w(e.Link.Overlap)
			w(e.Link.Distance)
		}
	}
	return b.Bytes()
}

// bodyReader decodes fixed-size little-endian fields and remembers the first
// error, so callers check once per record.
type bodyReader struct {
	r   *bytes.Reader
	err error
}

func (br *bodyReader) read(v any) {
	if br.err != nil {
		return
	}
	if err := binary.Read(br.r, binary.LittleEndian, v); err != nil {
		br.err = fmt.Errorf("%w: truncated body", ErrInvalidFormat)
	}
}

func (br *bodyReader) u32() uint32 {
	var v uint32
	br.read(&v)
	return v
}

// count reads a record count and rejects counts that cannot fit in what is
// left of the body, given the minimum size of one record.
func (br *bodyReader) count(recordSize int) int {
	n := br.u32()
	if br.err == nil && uint64(n)*uint64(recordSize) > uint64(br.r.Len()) {
		br.err = fmt.Errorf("%w: count %d exceeds body", ErrInvalidFormat, n)
	}
	return int(n)
}

const (
	cellRecordSize = 4 + 4 + 3*8 + 1 + 4
	edgeRecordSize = 4 + 4 + 1 + 4 + 4
)

func decodeBody(raw []byte) (*TrackMap, error) {
	br := &bodyReader{r: bytes.NewReader(raw)}
	tm := NewTrackMap()

	frameNum := br.count(8)
	if br.err != nil {
		return nil, br.err
	}
	tm.setFrameNum(frameNum)

	for f := 0; f < frameNum; f++ {
		cells := tm.frames[f]
		n := br.count(cellRecordSize)
		for i := 0; i < n && br.err == nil; i++ {
			var (
				id, size uint32
				xyz      [3]float64
				has      uint8
				vid      uint32
			)
			br.read(&id)
			br.read(&size)
			br.read(&xyz)
			br.read(&has)
			br.read(&vid)
			if br.err != nil {
				break
			}
			if has > 1 || math.IsNaN(xyz[0]) || math.IsNaN(xyz[1]) || math.IsNaN(xyz[2]) {
				return nil, fmt.Errorf("%w: frame %d: bad cell %d", ErrInvalidFormat, f, id)
			}
			c := &Cell{ID: CellID(id), Size: size}
			c.Center.X, c.Center.Y, c.Center.Z = xyz[0], xyz[1], xyz[2]
			if has == 1 {
				c.setVertex(VertexID(vid))
			}
			if !cells.Add(c) {
				return nil, fmt.Errorf("%w: frame %d: duplicate cell %d", ErrInvalidFormat, f, id)
			}
		}

		nv := br.count(4)
		for i := 0; i < nv && br.err == nil; i++ {
			vid := VertexID(br.u32())
			if br.err != nil {
				break
			}
			if _, dup := tm.vertices[f][vid]; dup {
				return nil, fmt.Errorf("%w: frame %d: duplicate vertex %d", ErrInvalidFormat, f, vid)
			}
			tm.addVertex(f, vid)
		}
		if br.err != nil {
			return nil, br.err
		}

		for _, c := range cells.Sorted() {
			vid, has := c.Vertex()
			if !has {
				continue
			}
			v, ok := tm.vertices[f][vid]
			if !ok {
				return nil, fmt.Errorf("%w: frame %d: cell %d refers to missing vertex %d", ErrInvalidFormat, f, c.ID, vid)
			}
			v.cells.Add(c.ID)
		}
		for _, vid := range tm.vertices[f].IDs() {
			v := tm.vertices[f][vid]
			if v.cells.Empty() {
				return nil, fmt.Errorf("%w: frame %d: vertex %d has no cells", ErrInvalidFormat, f, vid)
			}
			v.refresh(cells)
		}
	}

	for t, g := range tm.graphs {
		n := br.count(edgeRecordSize)
		for i := 0; i < n && br.err == nil; i++ {
			var (
				near, far         uint32
				linked            uint8
				overlap, distance float32
			)
			br.read(&near)
			br.read(&far)
			br.read(&linked)
			br.read(&overlap)
			br.read(&distance)
			if br.err != nil {
				break
			}
			if linked > 1 {
				return nil, fmt.Errorf("%w: pair %d: edge %d-%d has linked flag %d", ErrInvalidFormat, t, near, far, linked)
			}
			if _, ok := tm.vertices[t][VertexID(near)]; !ok {
				return nil, fmt.Errorf("%w: pair %d: edge from missing vertex %d", ErrInvalidFormat, t, near)
			}
			if _, ok := tm.vertices[t+1][VertexID(far)]; !ok {
				return nil, fmt.Errorf("%w: pair %d: edge to missing vertex %d", ErrInvalidFormat, t, far)
			}
			if g.Link(VertexID(near), VertexID(far)) != nil {
				return nil, fmt.Errorf("%w: pair %d: duplicate edge %d-%d", ErrInvalidFormat, t, near, far)
			}
			l := g.EnsureEdge(VertexID(near), VertexID(far))
			*l = Link{Linked: linked == 1, Overlap: overlap, Distance: distance}
		}
		if br.err != nil {
			return nil, br.err
		}
	}

	if br.err != nil {
		return nil, br.err
	}
	if br.r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidFormat, br.r.Len())
	}
	return tm, nil
}

// IsFormatError reports whether err is a track file rejection rather than an
// I/O failure.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrVersion)
}
