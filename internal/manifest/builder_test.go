package manifest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/darwinbuild/darwinxref/internal/testutil"
)

const abcSHA1 = "a9993e364706816aba3e25717850c26c9cd0d89d"

// fakeNormalizer records the files it was asked to digest.
type fakeNormalizer struct {
	available bool
	calls     []string
}

func (f *fakeNormalizer) Available() bool { return f.available }

func (f *fakeNormalizer) Digest(path string) string {
	f.calls = append(f.calls, path)
	return "normalized"
}

func memFS(t *testing.T, files map[string][]byte, dirs ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, d := range dirs {
		require.NoError(t, fs.MkdirAll(d, 0o755))
	}
	for name, data := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, afero.WriteFile(fs, name, data, 0o644))
	}
	return fs
}

func TestRegisterListing_SkipsDotAndMetadata(t *testing.T) {
	fs := memFS(t, map[string][]byte{
		"/dst/foo":   []byte("abc"),
		"/dst/._bar": []byte("resource fork"),
		"/dst/baz":   []byte("baz!"),
	})
	repo := testutil.NewTestRepository(t)
	var out bytes.Buffer

	n, err := New(repo, &out, FileSystem(fs)).
		RegisterListing(context.Background(), "8A428", "proj", "/dst", strings.NewReader(".\nfoo\n._bar\nbaz/\n"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Equal(t, []string{"/baz", "/foo"}, testutil.FilePaths(t, repo, "8A428", "proj"))
	require.Equal(t,
		PlaceholderChecksum+" 100644 0 0 3 ./foo\n"+
			PlaceholderChecksum+" 100644 0 0 4 ./baz\n",
		out.String(), "listing mode never checksums")
}

func TestRegisterListing_DirectoryLine(t *testing.T) {
	fs := memFS(t, map[string][]byte{"/dst/usr/bin/tool": []byte("x")})
	repo := testutil.NewMemoryRepository()
	var out bytes.Buffer

	n, err := New(repo, &out, FileSystem(fs)).
		RegisterListing(context.Background(), "B", "P", "/dst", strings.NewReader("./usr\n./usr/bin/\n"))
	require.NoError(t, err)
	require.Zero(t, n, "directories are not registered")

	require.Equal(t,
		PlaceholderChecksum+" 40755 0 0 0 ./usr\n"+
			PlaceholderChecksum+" 40755 0 0 0 ./usr/bin\n",
		out.String())
}

func TestRegisterListing_ExtractsButDoesNotNormalize(t *testing.T) {
	img := testutil.NewImage().WithDylib("/usr/lib/libSystem.B.dylib").Bytes()
	fs := memFS(t, map[string][]byte{"/dst/bin/tool": img})
	repo := testutil.NewTestRepository(t)
	norm := &fakeNormalizer{available: true}
	var out bytes.Buffer

	_, err := New(repo, &out, FileSystem(fs), WithNormalizer(norm)).
		RegisterListing(context.Background(), "B", "P", "/dst", strings.NewReader("./bin/tool\n"))
	require.NoError(t, err)

	require.Equal(t, []string{"/usr/lib/libSystem.B.dylib"}, testutil.DependencyPaths(t, repo, "B", "P"))
	require.Empty(t, norm.calls)
	require.True(t, strings.HasPrefix(out.String(), PlaceholderChecksum+" "))
}

func TestRegisterListing_MissingPathRollsBack(t *testing.T) {
	fs := memFS(t, map[string][]byte{"/dst/a": []byte("a"), "/dst/b": []byte("b")})
	repo := testutil.NewTestRepository(t)
	b := New(repo, &bytes.Buffer{}, FileSystem(fs))

	_, err := b.RegisterListing(context.Background(), "B", "P", "/dst", strings.NewReader("a\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	b = New(repo, &out, FileSystem(fs))
	_, err = b.RegisterListing(context.Background(), "B", "P", "/dst", strings.NewReader("b\nmissing\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")

	require.Equal(t, []string{"/a"}, testutil.FilePaths(t, repo, "B", "P"), "store keeps its previous state")
	require.Contains(t, out.String(), "./b\n", "lines already written remain")
}

func TestListingPath(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{".", "", false},
		{"", "", false},
		{"./", "", false},
		{"foo", "/foo", true},
		{"./foo", "/foo", true},
		{"/foo", "/foo", true},
		{"baz/", "/baz", true},
		{"./usr/lib/", "/usr/lib", true},
		{"._bar", "", false},
		{"./dir/._meta", "", false},
		{"./dir/.hidden", "/dir/.hidden", true},
		{".hidden", "/.hidden", true},
	}
	for _, tt := range tests {
		got, ok := listingPath(tt.line)
		require.Equal(t, tt.ok, ok, "line %q", tt.line)
		require.Equal(t, tt.want, got, "line %q", tt.line)
	}
}

func TestRegisterTree_PreOrderWithChecksums(t *testing.T) {
	fs := memFS(t, map[string][]byte{
		"/dst/b":        []byte("abc"),
		"/dst/a/x":      []byte(""),
		"/dst/a/y/deep": []byte("abc"),
	})
	repo := testutil.NewTestRepository(t)
	var out bytes.Buffer

	n, err := New(repo, &out, FileSystem(fs)).RegisterTree(context.Background(), "B", "P", "/dst")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.Equal(t,
		PlaceholderChecksum+" 40755 0 0 0 ./a\n"+
			"da39a3ee5e6b4b0d3255bfef95601890afd80709 100644 0 0 0 ./a/x\n"+
			PlaceholderChecksum+" 40755 0 0 0 ./a/y\n"+
			abcSHA1+" 100644 0 0 3 ./a/y/deep\n"+
			abcSHA1+" 100644 0 0 3 ./b\n",
		out.String())
	require.Equal(t, []string{"/a/x", "/a/y/deep", "/b"}, testutil.FilePaths(t, repo, "B", "P"))
}

func TestRegisterTree_CaseSensitiveOrder(t *testing.T) {
	fs := memFS(t, map[string][]byte{
		"/dst/a":   []byte("abc"),
		"/dst/B":   []byte("abc"),
		"/dst/Z/c": []byte("abc"),
	})
	var out bytes.Buffer

	_, err := New(testutil.NewMemoryRepository(), &out, FileSystem(fs)).RegisterTree(context.Background(), "B", "P", "/dst")
	require.NoError(t, err)
	require.Equal(t,
		abcSHA1+" 100644 0 0 3 ./B\n"+
			PlaceholderChecksum+" 40755 0 0 0 ./Z\n"+
			abcSHA1+" 100644 0 0 3 ./Z/c\n"+
			abcSHA1+" 100644 0 0 3 ./a\n",
		out.String(), "uppercase sorts before lowercase")
}

func TestRegisterTree_ReplacesPreviousRegistration(t *testing.T) {
	fs := memFS(t, map[string][]byte{"/one/a": nil, "/one/b": nil, "/one/c": nil, "/two/d": nil})
	repo := testutil.NewTestRepository(t)
	b := New(repo, &bytes.Buffer{}, FileSystem(fs))

	_, err := b.RegisterTree(context.Background(), "B", "P", "/one")
	require.NoError(t, err)
	require.Equal(t, []string{"/a", "/b", "/c"}, testutil.FilePaths(t, repo, "B", "P"))

	_, err = b.RegisterTree(context.Background(), "B", "P", "/two")
	require.NoError(t, err)
	require.Equal(t, []string{"/d"}, testutil.FilePaths(t, repo, "B", "P"))
}

func TestRegisterTree_NormalizerPolicy(t *testing.T) {
	img := testutil.NewImage(testutil.As64()).
		WithDylinker("/usr/lib/dyld").
		WithDylib("/usr/lib/libSystem.B.dylib").
		Bytes()
	files := map[string][]byte{"/dst/bin/tool": img, "/dst/etc/conf": []byte("abc")}

	t.Run("available", func(t *testing.T) {
		repo := testutil.NewTestRepository(t)
		norm := &fakeNormalizer{available: true}
		var out bytes.Buffer
		_, err := New(repo, &out, FileSystem(memFS(t, files)), WithNormalizer(norm)).
			RegisterTree(context.Background(), "B", "P", "/dst")
		require.NoError(t, err)

		require.Equal(t, []string{"/dst/bin/tool"}, norm.calls, "only Mach-O files are normalized")
		require.Contains(t, out.String(), "normalized 100644 0 0 ")
		require.Contains(t, out.String(), abcSHA1+" 100644 0 0 3 ./etc/conf\n")
		require.Equal(t, []string{"/usr/lib/dyld", "/usr/lib/libSystem.B.dylib"},
			testutil.DependencyPaths(t, repo, "B", "P"))
	})

	t.Run("unavailable", func(t *testing.T) {
		repo := testutil.NewTestRepository(t)
		norm := &fakeNormalizer{available: false}
		var out bytes.Buffer
		_, err := New(repo, &out, FileSystem(memFS(t, files)), WithNormalizer(norm)).
			RegisterTree(context.Background(), "B", "P", "/dst")
		require.NoError(t, err)

		require.Empty(t, norm.calls)
		require.NotContains(t, out.String(), "normalized")
		require.Len(t, testutil.DependencyPaths(t, repo, "B", "P"), 2)
	})
}

func TestRegisterTree_CommitFailure(t *testing.T) {
	fs := memFS(t, map[string][]byte{"/dst/a": []byte("abc")})
	repo := testutil.NewMemoryRepository()
	repo.FailCommit = true
	var out bytes.Buffer

	n, err := New(repo, &out, FileSystem(fs)).RegisterTree(context.Background(), "B", "P", "/dst")
	require.ErrorIs(t, err, testutil.ErrInjected)
	require.Zero(t, n)
	require.Equal(t, abcSHA1+" 100644 0 0 3 ./a\n", out.String())
	require.Zero(t, repo.Commits)
}

func TestRegisterTree_InsertFailureRollsBack(t *testing.T) {
	fs := memFS(t, map[string][]byte{"/dst/a": nil, "/dst/b": nil})
	repo := testutil.NewMemoryRepository()
	repo.FailAddFileAfter = 1

	_, err := New(repo, &bytes.Buffer{}, FileSystem(fs)).RegisterTree(context.Background(), "B", "P", "/dst")
	require.ErrorIs(t, err, testutil.ErrInjected)
	require.Equal(t, 1, repo.Rollbacks)
	require.Zero(t, repo.Commits)
}

func TestRegisterTree_MissingRoot(t *testing.T) {
	_, err := New(testutil.NewMemoryRepository(), &bytes.Buffer{}, FileSystem(afero.NewMemMapFs())).
		RegisterTree(context.Background(), "B", "P", "/nope")
	require.Error(t, err)
}

func TestRegisterTree_Symlinks(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "usr", "lib", "libz.1.dylib"), []byte("abc"), 0o644))
	require.NoError(t, os.Symlink("libz.1.dylib", filepath.Join(root, "usr", "lib", "libz.dylib")))
	require.NoError(t, os.Symlink("/nonexistent", filepath.Join(root, "dangling")))

	repo := testutil.NewTestRepository(t)
	var out bytes.Buffer
	n, err := New(repo, &out).RegisterTree(context.Background(), "B", "P", root)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.Equal(t,
		[]string{"/dangling", "/usr/lib/libz.1.dylib", "/usr/lib/libz.dylib"},
		testutil.FilePaths(t, repo, "B", "P"))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasSuffix(lines[0], " ./dangling -> /nonexistent"), lines[0])
	require.True(t, strings.HasPrefix(lines[0], PlaceholderChecksum+" 120"), lines[0])
	require.True(t, strings.HasSuffix(lines[1], " 0 ./usr"), lines[1])
	require.True(t, strings.HasPrefix(lines[3], abcSHA1+" 100644 "), lines[3])
	require.True(t, strings.HasSuffix(lines[4], " ./usr/lib/libz.dylib -> libz.1.dylib"), lines[4])
}

func TestRegisterTree_FollowsRootSymlink(t *testing.T) {
	dir := t.TempDir()
	realDir := filepath.Join(dir, "real")
	require.NoError(t, os.MkdirAll(realDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(realDir, "f"), []byte("abc"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(realDir, link))

	repo := testutil.NewTestRepository(t)
	n, err := New(repo, &bytes.Buffer{}).RegisterTree(context.Background(), "B", "P", link)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"/f"}, testutil.FilePaths(t, repo, "B", "P"))
}

func TestRegisterListing_OsFsSymlink(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Symlink("target", filepath.Join(root, "link")))

	repo := testutil.NewMemoryRepository()
	var out bytes.Buffer
	n, err := New(repo, &out).RegisterListing(context.Background(), "B", "P", root, strings.NewReader("./link\n"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, strings.HasSuffix(out.String(), " ./link -> target\n"), out.String())
}
