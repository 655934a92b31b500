package cluster_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cluster "github.com/Martini024/point-cluster"
)

type renamedCodec struct {
	cluster.JSONCodec
}

func (renamedCodec) Name() string { return "json-v2" }

var errEncode = errors.New("encode failed")

type failingCodec struct {
	cluster.JSONCodec
}

func (failingCodec) Marshal(any) ([]byte, error) { return nil, errEncode }

func loadedSumCluster(t *testing.T) *cluster.Cluster[TestProps, sumProps] {
	t.Helper()
	opts := sumOptions()
	opts.MaxZoom = 8
	c, err := cluster.New(opts)
	require.NoError(t, err)

	points := randomPoints(1500, 1000, 21)
	for i := range points {
		points[i].ID = string(rune('a' + i%26))
	}
	require.NoError(t, c.Load(points))
	return c
}

func TestSnapshot_RoundTrip(t *testing.T) {
	source := loadedSumCluster(t)

	for _, compression := range []cluster.Compression{cluster.CompressionNone, cluster.CompressionLZ4, cluster.CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, source.WriteSnapshot(&buf, cluster.SnapshotOptions{Compression: compression}))

			//zoom range comes from the snapshot, not from the options
			restored, err := cluster.New(sumOptions())
			require.NoError(t, err)
			require.NoError(t, restored.ReadSnapshot(&buf, nil))
			require.True(t, restored.IsLoaded())
			assert.Equal(t, source.Len(), restored.Len())

			minZoom, maxZoom := restored.Zooms()
			assert.Equal(t, 0, minZoom)
			assert.Equal(t, 8, maxZoom)

			for zoom := 0; zoom <= 9; zoom++ {
				want, err := source.GetClusters(everything, float64(zoom))
				require.NoError(t, err)
				got, err := restored.GetClusters(everything, float64(zoom))
				require.NoError(t, err)
				require.Equal(t, want, got, "zoom %d", zoom)
			}

			top, err := source.GetClusters(everything, 1)
			require.NoError(t, err)
			for _, f := range top {
				if !f.IsCluster() {
					continue
				}
				wantChildren, err := source.GetChildren(f.Cluster.ID)
				require.NoError(t, err)
				gotChildren, err := restored.GetChildren(f.Cluster.ID)
				require.NoError(t, err)
				assert.Equal(t, wantChildren, gotChildren)

				wantLeaves, err := source.GetLeaves(f.Cluster.ID, 25, 10)
				require.NoError(t, err)
				gotLeaves, err := restored.GetLeaves(f.Cluster.ID, 25, 10)
				require.NoError(t, err)
				assert.Equal(t, wantLeaves, gotLeaves)

				wantZoom, err := source.GetClusterExpansionZoom(f.Cluster.ID)
				require.NoError(t, err)
				gotZoom, err := restored.GetClusterExpansionZoom(f.Cluster.ID)
				require.NoError(t, err)
				assert.Equal(t, wantZoom, gotZoom)
			}
		})
	}
}

func TestSnapshot_GoJSONCodec(t *testing.T) {
	source := loadedSumCluster(t)
	var buf bytes.Buffer
	require.NoError(t, source.WriteSnapshot(&buf, cluster.SnapshotOptions{Compression: cluster.CompressionZstd, Codec: cluster.GoJSONCodec{}}))

	//the codec is found by the name stored in the snapshot
	restored, err := cluster.New(sumOptions())
	require.NoError(t, err)
	require.NoError(t, restored.ReadSnapshot(&buf, nil))

	want, err := source.GetClusters(everything, 3)
	require.NoError(t, err)
	got, err := restored.GetClusters(everything, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSnapshot_Compresses(t *testing.T) {
	source := loadedSumCluster(t)

	var plain, compressed bytes.Buffer
	require.NoError(t, source.WriteSnapshot(&plain, cluster.SnapshotOptions{Compression: cluster.CompressionNone}))
	require.NoError(t, source.WriteSnapshot(&compressed, cluster.SnapshotOptions{Compression: cluster.CompressionZstd}))
	assert.Less(t, compressed.Len(), plain.Len())
}

func TestSnapshot_Errors(t *testing.T) {
	source := loadedSumCluster(t)
	var buf bytes.Buffer
	require.NoError(t, source.WriteSnapshot(&buf, cluster.SnapshotOptions{Compression: cluster.CompressionNone}))
	data := buf.Bytes()

	newCluster := func() *cluster.Cluster[TestProps, sumProps] {
		c, err := cluster.New(sumOptions())
		require.NoError(t, err)
		return c
	}

	t.Run("bad magic", func(t *testing.T) {
		broken := bytes.Clone(data)
		broken[0] = 'X'
		err := newCluster().ReadSnapshot(bytes.NewReader(broken), nil)
		assert.ErrorIs(t, err, cluster.ErrInvalidSnapshot)
	})

	t.Run("unknown version", func(t *testing.T) {
		broken := bytes.Clone(data)
		broken[4] = 99
		err := newCluster().ReadSnapshot(bytes.NewReader(broken), nil)
		assert.ErrorIs(t, err, cluster.ErrInvalidSnapshot)
	})

	t.Run("unknown compression", func(t *testing.T) {
		broken := bytes.Clone(data)
		broken[5] = 42
		err := newCluster().ReadSnapshot(bytes.NewReader(broken), nil)
		assert.ErrorIs(t, err, cluster.ErrInvalidSnapshot)
	})

	t.Run("truncated", func(t *testing.T) {
		c := newCluster()
		err := c.ReadSnapshot(bytes.NewReader(data[:len(data)/2]), nil)
		assert.Error(t, err)
		assert.False(t, c.IsLoaded())
	})

	t.Run("codec mismatch", func(t *testing.T) {
		err := newCluster().ReadSnapshot(bytes.NewReader(data), renamedCodec{})
		assert.ErrorIs(t, err, cluster.ErrInvalidSnapshot)
	})

	t.Run("already loaded", func(t *testing.T) {
		err := source.ReadSnapshot(bytes.NewReader(data), nil)
		assert.ErrorIs(t, err, cluster.ErrAlreadyLoaded)
	})

	t.Run("not loaded", func(t *testing.T) {
		var out bytes.Buffer
		assert.Error(t, newCluster().WriteSnapshot(&out, cluster.SnapshotOptions{}))
	})
}

func TestSnapshot_EncodeError(t *testing.T) {
	source := loadedSumCluster(t)
	for _, compression := range []cluster.Compression{cluster.CompressionNone, cluster.CompressionLZ4, cluster.CompressionZstd} {
		var buf bytes.Buffer
		err := source.WriteSnapshot(&buf, cluster.SnapshotOptions{Compression: compression, Codec: failingCodec{}})
		assert.ErrorIs(t, err, errEncode, compression.String())
	}

	//a failed write leaves the cluster usable for the next one
	var buf bytes.Buffer
	require.NoError(t, source.WriteSnapshot(&buf, cluster.SnapshotOptions{Compression: cluster.CompressionZstd}))
}

func TestSnapshot_CustomCodec(t *testing.T) {
	source := loadedSumCluster(t)
	var buf bytes.Buffer
	require.NoError(t, source.WriteSnapshot(&buf, cluster.SnapshotOptions{Compression: cluster.CompressionLZ4, Codec: renamedCodec{}}))

	//json-v2 is not a built-in name, so the codec has to be passed explicitly
	c, err := cluster.New(sumOptions())
	require.NoError(t, err)
	err = c.ReadSnapshot(bytes.NewReader(buf.Bytes()), nil)
	assert.ErrorIs(t, err, cluster.ErrInvalidSnapshot)

	c, err = cluster.New(sumOptions())
	require.NoError(t, err)
	require.NoError(t, c.ReadSnapshot(bytes.NewReader(buf.Bytes()), renamedCodec{}))

	features, err := c.GetClusters(everything, 0)
	require.NoError(t, err)
	total := 0.0
	for _, f := range features {
		if f.IsCluster() {
			total += f.Cluster.Properties.Sum
		} else {
			total += f.Point.Properties.Value
		}
	}
	var sum float64
	for _, p := range randomPoints(1500, 1000, 21) {
		sum += p.Properties.Value
	}
	assert.Equal(t, sum, total)
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		c, err := cluster.ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.String())
	}
	c, err := cluster.ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, cluster.CompressionZstd, c)

	_, err = cluster.ParseCompression("gzip")
	assert.Error(t, err)
}

func TestJSONCodec(t *testing.T) {
	codec, ok := cluster.CodecByName("json")
	require.True(t, ok)
	b, err := codec.Marshal(sumProps{Sum: 2.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Sum":2.5}`, string(b))

	var v sumProps
	require.NoError(t, json.Unmarshal(b, &v))
	assert.Equal(t, 2.5, v.Sum)

	codec, ok = cluster.CodecByName("go-json")
	require.True(t, ok)
	b, err = codec.Marshal(sumProps{Sum: 2.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Sum":2.5}`, string(b))

	_, ok = cluster.CodecByName("gob")
	assert.False(t, ok)
}
