package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves a fixed listing and an in-memory object map.
type fakeS3 struct {
	mu      sync.Mutex
	keys    []string
	objects map[string][]byte
	gets    int
	puts    map[string][]byte
}

func newFakeS3(keys ...string) *fakeS3 {
	return &fakeS3{keys: keys, objects: map[string][]byte{}, puts: map[string][]byte{}}
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for _, k := range f.keys {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(1)})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestParseURI(t *testing.T) {
	u, err := ParseURI("s3://bucket/a/b/c.zip")
	require.NoError(t, err)
	assert.Equal(t, URI{Scheme: "s3", Bucket: "bucket", Key: "a/b/c.zip"}, u)
	assert.Equal(t, "s3://bucket/a/b/c.zip", u.String())

	u, err = ParseURI("gs://bucket/key")
	require.NoError(t, err)
	assert.Equal(t, "gs", u.Scheme)

	_, err = ParseURI("ftp://bucket/key")
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
	_, err = ParseURI("s3:///key")
	assert.Error(t, err)
	_, err = ParseURI("/local/path")
	assert.Error(t, err)
}

func TestParseBucket(t *testing.T) {
	tests := []struct {
		in, scheme, bucket string
	}{
		{"my-bucket", "s3", "my-bucket"},
		{"s3://my-bucket", "s3", "my-bucket"},
		{"s3:my-bucket/", "s3", "my-bucket"},
		{"gs://my-bucket/", "gs", "my-bucket"},
	}
	for _, tt := range tests {
		scheme, bucket := ParseBucket(tt.in)
		assert.Equal(t, tt.scheme, scheme, tt.in)
		assert.Equal(t, tt.bucket, bucket, tt.in)
	}
}

func TestListGSLCs(t *testing.T) {
	fake := newFakeS3(
		"job/GSLC_granules/S1A_IW_RAW__0SDV_20231229T134339_20231229T134411_051870_064437_4F42.zip",
		"job/GSLC_granules/S1A_IW_RAW__0SDV_20231229T134339_20231229T134411_051870_064437_4F42.json",
		"job/GSLC_granules/notes.zip",
		"job/GSLC_granules/S1B_IW_RAW__0SDV_20210101T000000_20210101T000030_025000_02F9A1_ABCD.geo",
		"job/GSLC_granules/S1A_IW_SLC__1SDV_20231229T134339_20231229T134411_051870_064437_4F42.zip",
		"job/GSLC_granules/S1A_IW_RAW__0SDV_20231229T134404_20231229T134436_051870_064437_5F38.zip",
		"other/S1A_IW_RAW__0SDV_20231229T134404_20231229T134436_051870_064437_5F38.zip",
	)
	mux := NewMux(map[string]Gateway{SchemeS3: NewS3Gateway(fake)})

	uris, err := mux.ListGSLCs(context.Background(), "bucket", "job/GSLC_granules")
	require.NoError(t, err)

	want := []string{
		"s3://bucket/job/GSLC_granules/S1A_IW_RAW__0SDV_20231229T134339_20231229T134411_051870_064437_4F42.zip",
		"s3://bucket/job/GSLC_granules/S1B_IW_RAW__0SDV_20210101T000000_20210101T000030_025000_02F9A1_ABCD.geo",
		"s3://bucket/job/GSLC_granules/S1A_IW_RAW__0SDV_20231229T134404_20231229T134436_051870_064437_5F38.zip",
	}
	if diff := cmp.Diff(want, uris); diff != "" {
		t.Errorf("ListGSLCs() mismatch (-want +got):\n%s", diff)
	}
}

func TestMux_FetchS3(t *testing.T) {
	fake := newFakeS3()
	fake.objects["bucket/a/scene.zip"] = []byte("payload")
	mux := NewMux(map[string]Gateway{SchemeS3: NewS3Gateway(fake)})

	dest := filepath.Join(t.TempDir(), "scene.zip")
	require.NoError(t, mux.Fetch(context.Background(), "s3://bucket/a/scene.zip", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	err = mux.Fetch(context.Background(), "s3://bucket/missing.zip", filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err)
}

func TestMux_FetchUnconfiguredScheme(t *testing.T) {
	mux := NewMux(nil)
	err := mux.Fetch(context.Background(), "gs://bucket/key", filepath.Join(t.TempDir(), "x"))
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
}

func TestMux_FetchHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geoid" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("grid"))
	}))
	defer server.Close()

	mux := NewMux(nil)
	dir := t.TempDir()
	dest := filepath.Join(dir, "geoid")
	require.NoError(t, mux.Fetch(context.Background(), server.URL+"/geoid", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "grid", string(data))

	err = mux.Fetch(context.Background(), server.URL+"/missing", filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.NoFileExists(t, filepath.Join(dir, "missing"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no partial files left behind")
}

func TestMux_FetchLocal(t *testing.T) {
	src := filepath.Join(t.TempDir(), "in.zip")
	require.NoError(t, os.WriteFile(src, []byte("local"), 0o644))

	dest := filepath.Join(t.TempDir(), "in.zip")
	require.NoError(t, NewMux(nil).Fetch(context.Background(), src, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))

	// Same path is a no-op.
	require.NoError(t, NewMux(nil).Fetch(context.Background(), dest, dest))
}

func TestMux_Upload(t *testing.T) {
	fake := newFakeS3()
	mux := NewMux(map[string]Gateway{SchemeS3: NewS3Gateway(fake)})

	src := filepath.Join(t.TempDir(), "PRODUCT.zip")
	require.NoError(t, os.WriteFile(src, []byte("zip"), 0o644))

	uri, err := mux.Upload(context.Background(), src, "bucket", "job-1/GSLC_granules")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/job-1/GSLC_granules/PRODUCT.zip", uri)
	assert.Equal(t, []byte("zip"), fake.puts["bucket/job-1/GSLC_granules/PRODUCT.zip"])

	uri, err = mux.Upload(context.Background(), src, "bucket", "")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/PRODUCT.zip", uri)
}
