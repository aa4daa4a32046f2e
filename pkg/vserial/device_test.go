package vserial

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithoutPath(t *testing.T) {
	d, err := Open(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	assert.Equal(t, d.SlavePath(), d.Path())
	assert.NotNil(t, d.Master())

	// The pair is live: bytes written to the master surface on the slave.
	slave, err := os.OpenFile(d.SlavePath(), os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { slave.Close() })

	_, err = d.Master().Write([]byte("hi"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	done := make(chan int, 1)
	go func() {
		n, _ := slave.Read(buf)
		done <- n
	}()
	select {
	case n := <-done:
		assert.Equal(t, "hi", string(buf[:n]))
	case <-time.After(time.Second):
		t.Fatal("timeout reading from slave")
	}
}

func TestPublishAndClose(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "ttyV0")

	d, err := Open(Options{Path: link, AllowedRoots: []string{dir}})
	require.NoError(t, err)

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, d.SlavePath(), target)
	assert.Equal(t, link, d.Path())

	// Permission policy applies to the real device node.
	info, err := os.Stat(d.SlavePath())
	require.NoError(t, err)
	assert.Equal(t, DefaultMode, info.Mode().Perm())

	require.NoError(t, d.Close())
	_, err = os.Lstat(link)
	assert.True(t, os.IsNotExist(err), "symlink should be removed on close")

	// Close is idempotent.
	require.NoError(t, d.Close())
}

func TestStaleSymlinkReplaced(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "ttyV0")

	// Simulate an unclean kill: a dangling link left behind.
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), link))

	d, err := Open(Options{Path: link, AllowedRoots: []string{dir}})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, d.SlavePath(), target)

	// No leftover temporaries in the directory.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ttyV0", entries[0].Name())
}

func TestRegularFileNotReplaced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttyV0")
	require.NoError(t, os.WriteFile(path, []byte("precious"), 0o644))

	_, err := Open(Options{Path: path, AllowedRoots: []string{dir}})
	require.ErrorIs(t, err, ErrInvalidPath)

	// The existing file is untouched.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(data))
}

func TestCloseKeepsForeignLink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "ttyV0")

	d, err := Open(Options{Path: link, AllowedRoots: []string{dir}})
	require.NoError(t, err)

	// Another process replaced the link while we were running.
	foreign := filepath.Join(dir, "other")
	require.NoError(t, os.Remove(link))
	require.NoError(t, os.Symlink(foreign, link))

	require.NoError(t, d.Close())

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, foreign, target, "close must not delete an externally replaced link")
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"valid", filepath.Join(dir, "ttyV0"), true},
		{"relative", "ttyV0", false},
		{"traversal", dir + "/../ttyV0", false},
		{"outside root", "/etc/ttyV0", false},
		{"missing parent", filepath.Join(dir, "nope", "ttyV0"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePath(tc.path, []string{dir})
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPath)
			}
		})
	}
}

func TestAtomicRepublish(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "ttyV0")

	first, err := Open(Options{Path: link, AllowedRoots: []string{dir}})
	require.NoError(t, err)

	// A second device publishing over the same path always leaves the
	// link resolving to a live slave - first's or second's, never absent.
	second, err := Open(Options{Path: link, AllowedRoots: []string{dir}})
	require.NoError(t, err)

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, second.SlavePath(), target)

	// first's close must leave second's link alone.
	require.NoError(t, first.Close())
	target, err = os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, second.SlavePath(), target)

	require.NoError(t, second.Close())
}
