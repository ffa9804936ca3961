package tmppath_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unixutils/pkg/tmppath"
)

func fixedToken(tok string) tmppath.TokenFunc {
	return func() string { return tok }
}

func TestPath_ReportCSV(t *testing.T) {
	a := tmppath.MustNew(tmppath.WithPrefix("ns"), tmppath.WithDir(t.TempDir()))

	got := filepath.Base(a.Path("a/b/report.csv"))

	assert.Regexp(t, regexp.MustCompile(`^ns_[0-9a-f]{8}_report_csv\.csv$`), got)
}

func TestPath_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := tmppath.MustNew(tmppath.WithPrefix("ns"), tmppath.WithDir(dir), tmppath.WithTokenFunc(fixedToken("0badf00d")))

	assert.Equal(t, filepath.Join(dir, "ns_0badf00d_report_csv.csv"), a.Path("a/b/report.csv"))
}

func TestPath_Unique(t *testing.T) {
	a := tmppath.MustNew()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		p := a.Path("dirname1/dirname2/basename.extname")
		require.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
}

func TestPath_IncludesBasenameAndExtname(t *testing.T) {
	p := tmppath.Path("dirname1/dirname2/basename.extname")

	assert.Contains(t, p, "basename")
	assert.Contains(t, p, "extname")
	assert.NotContains(t, p, "dirname1")
	assert.Equal(t, os.TempDir(), filepath.Dir(p))
}

func TestPath_ExplicitExtension(t *testing.T) {
	a := tmppath.MustNew()

	assert.Equal(t, ".foobar", filepath.Ext(a.Path("dirname1/dirname2/basename.extname", ".foobar")))
	assert.Equal(t, ".zip", filepath.Ext(a.Path("directory", "zip")))
}

func TestPath_LengthBound(t *testing.T) {
	a := tmppath.MustNew()
	long := strings.Repeat("a", 5000)

	for i := 0; i < 100; i++ {
		assert.Len(t, filepath.Base(a.Path(long)), tmppath.MaxNameLen)
	}

	withExt := filepath.Base(a.Path(long + ".csv"))
	assert.Len(t, withExt, tmppath.MaxNameLen)
	assert.True(t, strings.HasSuffix(withExt, ".csv"))
}

func TestPath_OversizedExtensionIsDropped(t *testing.T) {
	a := tmppath.MustNew()

	got := filepath.Base(a.Path("x", strings.Repeat("e", 400)))

	assert.LessOrEqual(t, len(got), tmppath.MaxNameLen)
}

func TestPath_PrefixAppearsOnce(t *testing.T) {
	a := tmppath.MustNew()

	one := a.Path("basename.extname")
	again := a.Path(one)
	andAgain := a.Path(again)

	for _, p := range []string{one, again, andAgain} {
		base := filepath.Base(p)
		assert.True(t, strings.HasPrefix(base, "unix_utils_"), base)
		assert.Equal(t, 1, strings.Count(base, "unix_utils"), base)
		assert.Contains(t, base, "basename_extname")
	}
	assert.Equal(t, ".extname", filepath.Ext(andAgain))
}

func TestPath_RederivationKeepsFragment(t *testing.T) {
	a := tmppath.MustNew(tmppath.WithPrefix("ns"))

	first := filepath.Base(a.Path("a/b/report.csv"))
	second := filepath.Base(a.Path(a.Path("a/b/report.csv")))

	assert.Equal(t, first[len("ns_12345678_"):], second[len("ns_12345678_"):])
}

func TestPath_SanitizesRuns(t *testing.T) {
	a := tmppath.MustNew(tmppath.WithTokenFunc(fixedToken("00000000")))

	assert.Equal(t, "unix_utils_00000000_file_really_a_g_z_shh", a.Name("file-really-a-g_z-shh"))
	assert.Equal(t, "unix_utils_00000000_Hola_c_mo_txt.txt", a.Name("Hola, ¿cómo.txt"))
	assert.Equal(t, "unix_utils_00000000_index_html_q_1.html_q_1", a.Name("http://example.com/index.html?q=1"))
	assert.Equal(t, "unix_utils_00000000_file", a.Name("/"))
}

func TestDir_CreatesDirectoryWithoutExtension(t *testing.T) {
	a := tmppath.MustNew(tmppath.WithDir(t.TempDir()))

	dir, err := a.Dir("fixtures/directory.zip")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Empty(t, filepath.Ext(dir))
	assert.Contains(t, filepath.Base(dir), "directory_zip")
}

func TestOwns(t *testing.T) {
	dir := t.TempDir()
	a := tmppath.MustNew(tmppath.WithDir(dir))

	assert.True(t, a.Owns(a.Path("x.txt")))
	assert.False(t, a.Owns(filepath.Join(dir, "x.txt")))
	assert.False(t, a.Owns(filepath.Join(dir, "sub", "unix_utils_00000000_x")))
	assert.False(t, a.Owns("/etc/passwd"))
}

func TestNew_RejectsUnsafePrefixes(t *testing.T) {
	for _, prefix := range []string{
		"",
		"/data/data/com.termux/files/usr",
		"../escape",
		"has space",
		"dot.ted",
		strings.Repeat("p", tmppath.MaxPrefixLen+1),
		strings.Repeat("p", 246),
	} {
		a, err := tmppath.New(tmppath.WithPrefix(prefix))

		assert.ErrorIs(t, err, tmppath.ErrInvalidPrefix, "prefix %q", prefix)
		assert.Nil(t, a)
	}
}

func TestNew_LongestPrefixStillFits(t *testing.T) {
	dir := t.TempDir()
	a, err := tmppath.New(tmppath.WithDir(dir), tmppath.WithPrefix(strings.Repeat("p", tmppath.MaxPrefixLen)))
	require.NoError(t, err)

	p := a.Path(strings.Repeat("a", 5000) + ".csv")

	assert.Equal(t, dir, filepath.Dir(p))
	assert.Len(t, filepath.Base(p), tmppath.MaxNameLen)
	assert.True(t, a.Owns(p))
}
