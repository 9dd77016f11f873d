package compilecache_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/internal/compilecache"
)

// writeExecutableScript installs a fake "make" on PATH that writes a fixed
// artifact to $OUT_FILE, standing in for the real toolchain.
func writeExecutableScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
}

func newCache(t *testing.T) *compilecache.Cache {
	t.Helper()
	root := t.TempDir()
	c := &compilecache.Cache{
		CacheDir:    filepath.Join(root, "cache"),
		TemplateDir: filepath.Join(root, "templates"),
		WorkDir:     filepath.Join(root, "work"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(c.TemplateDir, "c"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(c.TemplateDir, "c", "Makefile"), []byte("# stub\n"), 0o644))
	return c
}

func fakeMakeSucceeds(t *testing.T) string {
	t.Helper()
	fakeBin := t.TempDir()
	writeExecutableScript(t, fakeBin, "make", `
out=""
for a in "$@"; do
  case "$a" in
    OUT_FILE=*) out="${a#OUT_FILE=}";;
    -C) shift_c=1;;
  esac
done
# the job dir is the argument following -C
dir=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-C" ]; then dir="$a"; fi
  prev="$a"
done
printf '\x00asm-artifact' > "$dir/$out"
exit 0
`)
	return fakeBin
}

func TestCompile_MissThenHit(t *testing.T) {
	c := newCache(t)
	fakeBin := fakeMakeSucceeds(t)
	t.Setenv("PATH", fakeBin+string(os.PathListSeparator)+os.Getenv("PATH"))

	out, err := c.Compile(context.Background(), []byte("int main(){return 0;}"), compilecache.LanguageC)
	require.NoError(t, err)
	require.Equal(t, []byte("\x00asm-artifact"), out)

	entries, err := os.ReadDir(c.CacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// second call with identical source must not touch the toolchain: break
	// "make" and confirm the cached artifact still comes back.
	writeExecutableScript(t, fakeBin, "make", `exit 1`)
	out2, err := c.Compile(context.Background(), []byte("int main(){return 0;}"), compilecache.LanguageC)
	require.NoError(t, err)
	require.Equal(t, out, out2)
}

func TestCompile_DifferentSourceMisses(t *testing.T) {
	c := newCache(t)
	fakeBin := fakeMakeSucceeds(t)
	t.Setenv("PATH", fakeBin+string(os.PathListSeparator)+os.Getenv("PATH"))

	_, err := c.Compile(context.Background(), []byte("a"), compilecache.LanguageC)
	require.NoError(t, err)
	_, err = c.Compile(context.Background(), []byte("b"), compilecache.LanguageC)
	require.NoError(t, err)

	entries, err := os.ReadDir(c.CacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestCompile_BuildFailureReturnsErrCompileFailed(t *testing.T) {
	c := newCache(t)
	fakeBin := t.TempDir()
	writeExecutableScript(t, fakeBin, "make", `echo "syntax error" >&2; exit 1`)
	t.Setenv("PATH", fakeBin+string(os.PathListSeparator)+os.Getenv("PATH"))

	_, err := c.Compile(context.Background(), []byte("broken"), compilecache.LanguageC)
	require.Error(t, err)
	var cf *compilecache.ErrCompileFailed
	require.ErrorAs(t, err, &cf)
	require.Contains(t, string(cf.Output), "syntax error")
}

func TestHash_DiffersByLanguage(t *testing.T) {
	src := []byte("same source")
	require.NotEqual(t,
		compilecache.Hash(src, compilecache.LanguageC),
		compilecache.Hash(src, compilecache.LanguageRust),
	)
}
