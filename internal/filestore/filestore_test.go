package filestore

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkRoot(t *testing.T) StoreRoot {
	t.Helper()
	dir := t.TempDir()
	root, err := NewStoreRoot(dir)
	require.NoError(t, err)
	return root
}

func writeArtifact(t *testing.T, root StoreRoot, rel, content string) {
	t.Helper()
	full := filepath.Join(root.Path(), rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestSplitStemBoundaryCases(t *testing.T) {
	cases := []struct {
		stem    string
		name    string
		version string
	}{
		{"a-1", "a", "1"},
		{"foo2-1-1.2a3", "foo2", "1-1.2a3"},
	}
	for _, c := range cases {
		name, version, err := splitStem(c.stem)
		require.NoError(t, err, c.stem)
		assert.Equal(t, c.name, string(name), c.stem)
		assert.Equal(t, c.version, string(version), c.stem)
	}
}

func TestStemOfStripsOneExtension(t *testing.T) {
	assert.Equal(t, "a-1", stemOf("a-1.tar"))
	assert.Equal(t, "a-1", stemOf("a-1"))
}

func TestFullArtifactPathRequiresRegularFile(t *testing.T) {
	root := mkRoot(t)
	writeArtifact(t, root, "a-1.tar", "data")

	ap, err := NewArtifactPath("a-1.tar")
	require.NoError(t, err)
	fap, err := root.Join(ap)
	require.NoError(t, err)
	b, err := fap.Read()
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	missing, err := NewArtifactPath("nope-1.tar")
	require.NoError(t, err)
	_, err = root.Join(missing)
	assert.Error(t, err)
}

func TestStagingStoreIndexesRegularFilesOnly(t *testing.T) {
	root := mkRoot(t)
	writeArtifact(t, root, "a-1.tar", "x")
	writeArtifact(t, root, "sub/b-2.tar", "y")
	require.NoError(t, os.Mkdir(filepath.Join(root.Path(), "emptydir"), 0o755))

	s, err := NewStagingStore(root)
	require.NoError(t, err)
	all := s.All()
	assert.Len(t, all, 2)

	ap, _ := NewArtifactPath("a-1.tar")
	a, ok := s.Get(ap)
	require.True(t, ok)
	assert.Equal(t, "a", string(a.Name))
	assert.Equal(t, "1", string(a.Version))

	a2, ok := s.GetByNameAndVersion("b", "2")
	require.True(t, ok)
	assert.Equal(t, "sub/b-2.tar", a2.Path.String())
}

func TestStagingStoreReload(t *testing.T) {
	root := mkRoot(t)
	s, err := NewStagingStore(root)
	require.NoError(t, err)
	assert.Empty(t, s.All())

	writeArtifact(t, root, "a-1.tar", "x")
	require.NoError(t, s.Reload())
	assert.Len(t, s.All(), 1)
}

func TestMergedStoresStagingShadowsRelease(t *testing.T) {
	stagingRoot := mkRoot(t)
	releaseRoot := mkRoot(t)

	writeArtifact(t, releaseRoot, "a-1.tar", "released")
	writeArtifact(t, stagingRoot, "a-1.tar", "staged")

	staging, err := NewStagingStore(stagingRoot)
	require.NoError(t, err)
	release, err := NewReleaseStore("stable", releaseRoot)
	require.NoError(t, err)

	merged := NewMergedStores(staging, []*ReleaseStore{release})
	ap, _ := NewArtifactPath("a-1.tar")
	a, root, found := merged.GetArtifact(ap)
	require.True(t, found)
	assert.Equal(t, stagingRoot.Path(), root.Path())
	assert.Equal(t, "a", string(a.Name))
}

func TestMergedStoresFallsBackToRelease(t *testing.T) {
	stagingRoot := mkRoot(t)
	releaseRoot := mkRoot(t)
	writeArtifact(t, releaseRoot, "a-1.tar", "released")

	staging, err := NewStagingStore(stagingRoot)
	require.NoError(t, err)
	release, err := NewReleaseStore("stable", releaseRoot)
	require.NoError(t, err)

	merged := NewMergedStores(staging, []*ReleaseStore{release})
	a, root, found := merged.GetArtifactByNameAndVersion("a", "1")
	require.True(t, found)
	assert.Equal(t, releaseRoot.Path(), root.Path())
	assert.Equal(t, "a", string(a.Name))
}

func TestMergedStoresNilStaging(t *testing.T) {
	releaseRoot := mkRoot(t)
	writeArtifact(t, releaseRoot, "a-1.tar", "released")
	release, err := NewReleaseStore("stable", releaseRoot)
	require.NoError(t, err)

	merged := NewMergedStores(nil, []*ReleaseStore{release})
	ap, _ := NewArtifactPath("a-1.tar")
	_, _, found := merged.GetArtifact(ap)
	assert.True(t, found)
}

func buildTar(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestWriteFilesFromTarStreamIndexesRegularFiles(t *testing.T) {
	root := mkRoot(t)
	s, err := NewStagingStore(root)
	require.NoError(t, err)

	data := buildTar(t, map[string]string{
		"a-1.tar": "hello",
		"b-2.tar": "world",
	})
	written, err := s.WriteFilesFromTarStream(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, written, 2)

	got, ok := s.GetByNameAndVersion("a", "1")
	require.True(t, ok)
	b, err := os.ReadFile(filepath.Join(root.Path(), got.Path.String()))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestWriteFilesFromTarStreamRejectsPathEscape(t *testing.T) {
	root := mkRoot(t)
	s, err := NewStagingStore(root)
	require.NoError(t, err)

	data := buildTar(t, map[string]string{"../../etc/evil": "x"})
	_, err = s.WriteFilesFromTarStream(bytes.NewReader(data))
	assert.Error(t, err)
}

func TestWriteFilesFromTarStreamSurfacesDecodeErrors(t *testing.T) {
	root := mkRoot(t)
	s, err := NewStagingStore(root)
	require.NoError(t, err)

	_, err = s.WriteFilesFromTarStream(bytes.NewReader([]byte("not a tar stream at all, definitely too short")))
	assert.Error(t, err)
}

func TestWriteFilesFromTarStreamAcceptsShortTopLevelNames(t *testing.T) {
	root := mkRoot(t)
	s, err := NewStagingStore(root)
	require.NoError(t, err)

	// A top-level 2-character entry name used to crash ensureWithinRoot's
	// hand-rolled traversal check (rel[:3] sliced past a 2-byte string).
	data := buildTar(t, map[string]string{"ab": "x"})
	_, err = s.WriteFilesFromTarStream(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestWriteFilesFromTarStreamExtractsSymlinks(t *testing.T) {
	root := mkRoot(t)
	s, err := NewStagingStore(root)
	require.NoError(t, err)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "a-1.tar", Mode: 0o644, Size: 5}))
	_, err = tw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "a-1.link",
		Typeflag: tar.TypeSymlink,
		Linkname: "a-1.tar",
	}))
	require.NoError(t, tw.Close())

	written, err := s.WriteFilesFromTarStream(&buf)
	require.NoError(t, err)
	assert.Len(t, written, 1) // the symlink itself is not indexed as an artifact

	target, err := os.Readlink(filepath.Join(root.Path(), "a-1.link"))
	require.NoError(t, err)
	assert.Equal(t, "a-1.tar", target)
}

func TestWriteFilesFromTarStreamRejectsAbsoluteSymlinkTarget(t *testing.T) {
	root := mkRoot(t)
	s, err := NewStagingStore(root)
	require.NoError(t, err)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "evil",
		Typeflag: tar.TypeSymlink,
		Linkname: "/etc/passwd",
	}))
	require.NoError(t, tw.Close())

	_, err = s.WriteFilesFromTarStream(&buf)
	assert.Error(t, err)
}
