package cluster

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"
)

// Snapshot layout:
//
//	header: magic "GCLS" | version uint8 | compression uint8
//	body (compressed): codec name | options | points | cluster properties | levels MinZoom..MaxZoom+1
//
// All numbers are little endian. Spatial indexes are not stored, they are rebuilt on read.
var snapshotMagic = [4]byte{'G', 'C', 'L', 'S'}

const snapshotVersion = 1

// upper bound for a single encoded string or property blob
const maxBlobSize = 1 << 30

// Compression selects how the snapshot body is compressed.
type Compression uint8

const (
	// CompressionNone stores the body as is.
	CompressionNone Compression = 0
	// CompressionLZ4 is fast, good for snapshots rebuilt often.
	CompressionLZ4 Compression = 1
	// CompressionZstd gives the best ratio, the default.
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps "none", "lz4" and "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

// SnapshotOptions configure WriteSnapshot.
type SnapshotOptions struct {
	Compression Compression
	// Codec encodes properties, nil means JSONCodec.
	Codec Codec
}

// diskRecord is the fixed-size on-disk form of a record.
type diskRecord struct {
	X, Y      float32
	Zoom      int32
	ID        int64
	Parent    int64
	NumPoints int64
	PropIndex int64
}

// WriteSnapshot stores the built hierarchy, so it can be restored by ReadSnapshot
// without clustering the points again.
func (c *Cluster[P, C]) WriteSnapshot(w io.Writer, opts SnapshotOptions) (err error) {
	ctx := context.Background()
	defer func() {
		c.opts.Logger.LogSnapshot(ctx, "write", opts.Compression, err)
	}()

	if !c.loaded {
		return errors.New("write snapshot: cluster is not loaded")
	}
	codec := opts.Codec
	if codec == nil {
		codec = JSONCodec{}
	}

	header := []byte{snapshotMagic[0], snapshotMagic[1], snapshotMagic[2], snapshotMagic[3], snapshotVersion, byte(opts.Compression)}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}

	body, closeBody, err := compressWriter(w, opts.Compression)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			closeBody()
		}
	}()
	bw := bufio.NewWriterSize(body, 1024*1024)
	sw := &snapshotWriter{w: bw}

	sw.string(codec.Name())
	sw.write(int32(c.opts.MinZoom), int32(c.opts.MaxZoom), int32(c.opts.MinPoints), int32(c.opts.NodeSize), c.opts.Radius)

	sw.write(uint64(len(c.points)))
	for i := range c.points {
		p := &c.points[i]
		sw.write(p.X, p.Y)
		sw.string(p.ID)
		sw.value(codec, p.Properties)
	}

	sw.write(uint64(c.props.size()))
	for _, v := range c.props.values {
		sw.value(codec, v)
	}

	for z := c.opts.MinZoom; z <= c.opts.MaxZoom+1; z++ {
		records := c.levels[z].records
		out := make([]diskRecord, len(records))
		for i, r := range records {
			out[i] = diskRecord{
				X:         r.x,
				Y:         r.y,
				Zoom:      int32(r.zoom),
				ID:        int64(r.id),
				Parent:    int64(r.parent),
				NumPoints: int64(r.numPoints),
				PropIndex: int64(r.propIndex),
			}
		}
		sw.write(uint64(len(out)), out)
	}

	if sw.err != nil {
		return fmt.Errorf("write snapshot: %w", sw.err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	closed = true
	if err := closeBody(); err != nil {
		return fmt.Errorf("close snapshot compressor: %w", err)
	}
	return nil
}

// ReadSnapshot restores a hierarchy written by WriteSnapshot into an empty Cluster.
// Zoom range, Radius, MinPoints and NodeSize are taken from the snapshot,
// function options (ScalingFunction, Map, Reduce, ...) are kept.
// codec may be nil, the codec named in the snapshot is used then.
func (c *Cluster[P, C]) ReadSnapshot(r io.Reader, codec Codec) (err error) {
	ctx := context.Background()
	compression := CompressionNone
	defer func() {
		c.opts.Logger.LogSnapshot(ctx, "read", compression, err)
	}()

	if c.loaded {
		return ErrAlreadyLoaded
	}

	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	if [4]byte(header[:4]) != snapshotMagic {
		return fmt.Errorf("%w: bad magic", ErrInvalidSnapshot)
	}
	if header[4] != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, header[4])
	}
	compression = Compression(header[5])

	body, closeBody, err := decompressReader(r, compression)
	if err != nil {
		return err
	}
	defer closeBody()
	sr := &snapshotReader{r: bufio.NewReaderSize(body, 1024*1024)}

	name := sr.string()
	if sr.err != nil {
		return fmt.Errorf("read snapshot: %w", sr.err)
	}
	if codec == nil {
		var ok bool
		if codec, ok = CodecByName(name); !ok {
			return fmt.Errorf("%w: unknown codec %q", ErrInvalidSnapshot, name)
		}
	} else if codec.Name() != name {
		return fmt.Errorf("%w: snapshot codec %q, got %q", ErrInvalidSnapshot, name, codec.Name())
	}

	var minZoom, maxZoom, minPoints, nodeSize int32
	var radius float64
	sr.read(&minZoom, &maxZoom, &minPoints, &nodeSize, &radius)
	if sr.err != nil {
		return fmt.Errorf("read snapshot options: %w", sr.err)
	}
	opts := c.opts
	opts.MinZoom, opts.MaxZoom = int(minZoom), int(maxZoom)
	opts.MinPoints, opts.NodeSize = int(minPoints), int(nodeSize)
	opts.Radius = radius
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	n := sr.count(maxPoints)
	points := make([]Point[P], 0, min(n, 1<<16))
	for i := uint64(0); i < n && sr.err == nil; i++ {
		var p Point[P]
		sr.read(&p.X, &p.Y)
		p.ID = sr.string()
		sr.value(codec, &p.Properties)
		points = append(points, p)
	}

	var props propertyTable[C]
	numProps := sr.count(n)
	for i := uint64(0); i < numProps && sr.err == nil; i++ {
		var v C
		sr.value(codec, &v)
		props.add(v)
	}

	raw := make([][]diskRecord, opts.MaxZoom+2)
	for z := opts.MinZoom; z <= opts.MaxZoom+1 && sr.err == nil; z++ {
		raw[z] = make([]diskRecord, sr.count(n))
		sr.read(raw[z])
	}
	if sr.err != nil {
		return fmt.Errorf("read snapshot: %w", sr.err)
	}

	//levels are independent once the records are known, build their indexes in parallel
	levels := make([]*level, opts.MaxZoom+2)
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for z := opts.MinZoom; z <= opts.MaxZoom+1; z++ {
		g.Go(func() error {
			records, err := decodeRecords(raw[z], len(points), props.size())
			if err != nil {
				return fmt.Errorf("level %d: %w", z, err)
			}
			levels[z] = newLevel(records, opts.IndexFactory, opts.NodeSize)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.opts = opts
	c.points = points
	c.props = props
	c.levels = levels
	c.loaded = true
	return nil
}

func decodeRecords(raw []diskRecord, n, numProps int) ([]record, error) {
	records := make([]record, len(raw))
	for i, d := range raw {
		r := record{
			x:         d.X,
			y:         d.Y,
			zoom:      int(d.Zoom),
			id:        int(d.ID),
			parent:    int(d.Parent),
			numPoints: int(d.NumPoints),
			propIndex: int(d.PropIndex),
		}
		switch {
		case r.numPoints < 1 || r.numPoints > n:
			return nil, fmt.Errorf("%w: record %d has %d points", ErrInvalidSnapshot, i, r.numPoints)
		case r.numPoints == 1 && (r.id < 0 || r.id >= n):
			return nil, fmt.Errorf("%w: record %d points to missing input %d", ErrInvalidSnapshot, i, r.id)
		case r.numPoints > 1 && !IsClusterID(r.id, n):
			return nil, fmt.Errorf("%w: record %d has invalid cluster id %d", ErrInvalidSnapshot, i, r.id)
		case r.propIndex != noProperty && (r.propIndex < 0 || r.propIndex >= numProps):
			return nil, fmt.Errorf("%w: record %d has invalid property index %d", ErrInvalidSnapshot, i, r.propIndex)
		}
		records[i] = r
	}
	return records, nil
}

func compressWriter(w io.Writer, c Compression) (io.Writer, func() error, error) {
	switch c {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, nil, fmt.Errorf("create zstd writer: %w", err)
		}
		return enc, enc.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown compression %s", c)
	}
}

func decompressReader(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return dec, dec.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidSnapshot, uint8(c))
	}
}

// snapshotWriter keeps the first error, so the encoding code stays linear.
type snapshotWriter struct {
	w   io.Writer
	err error
}

func (s *snapshotWriter) write(values ...any) {
	for _, v := range values {
		if s.err != nil {
			return
		}
		s.err = binary.Write(s.w, binary.LittleEndian, v)
	}
}

func (s *snapshotWriter) bytes(b []byte) {
	s.write(uint32(len(b)))
	if s.err == nil {
		_, s.err = s.w.Write(b)
	}
}

func (s *snapshotWriter) string(v string) {
	s.bytes([]byte(v))
}

func (s *snapshotWriter) value(codec Codec, v any) {
	if s.err != nil {
		return
	}
	b, err := codec.Marshal(v)
	if err != nil {
		s.err = fmt.Errorf("encode properties with %s: %w", codec.Name(), err)
		return
	}
	s.bytes(b)
}

type snapshotReader struct {
	r   io.Reader
	err error
}

func (s *snapshotReader) read(values ...any) {
	for _, v := range values {
		if s.err != nil {
			return
		}
		s.err = binary.Read(s.r, binary.LittleEndian, v)
	}
}

// count reads an element count and rejects anything above limit.
func (s *snapshotReader) count(limit uint64) uint64 {
	var v uint64
	s.read(&v)
	if s.err == nil && v > limit {
		s.err = fmt.Errorf("%w: count %d exceeds %d", ErrInvalidSnapshot, v, limit)
		return 0
	}
	return v
}

func (s *snapshotReader) bytes() []byte {
	var size uint32
	s.read(&size)
	if s.err != nil {
		return nil
	}
	if size > maxBlobSize {
		s.err = fmt.Errorf("%w: blob of %d bytes", ErrInvalidSnapshot, size)
		return nil
	}
	b := make([]byte, size)
	_, s.err = io.ReadFull(s.r, b)
	return b
}

func (s *snapshotReader) string() string {
	return string(s.bytes())
}

func (s *snapshotReader) value(codec Codec, v any) {
	b := s.bytes()
	if s.err != nil {
		return
	}
	if err := codec.Unmarshal(b, v); err != nil {
		s.err = fmt.Errorf("decode properties with %s: %w", codec.Name(), err)
	}
}
