package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabledock/internal/core"
)

func TestSave_AvoidsCollisions(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var names []string
	for i := 0; i < 3; i++ {
		name, size, err := d.Save(ctx, "contributors.csv", strings.NewReader("a,b\n"))
		require.NoError(t, err)
		assert.EqualValues(t, 4, size)
		names = append(names, name)
	}
	assert.Equal(t, []string{"contributors.csv", "contributors1.csv", "contributors2.csv"}, names)

	data, err := os.ReadFile(d.Path("contributors1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

func TestSave_StripsDirectories(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root)
	require.NoError(t, err)

	name, _, err := d.Save(context.Background(), "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "passwd", name)
	assert.Equal(t, filepath.Join(root, "passwd"), d.Path(name))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestSave_RemovesPartialFile(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	_, _, err = d.Save(context.Background(), "bad.csv", failingReader{})
	require.Error(t, err)

	_, err = os.Stat(d.Path("bad.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCreateOpenRemove(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	w, err := d.Create("export.csv")
	require.NoError(t, err)
	_, err = io.WriteString(w, "id\n1\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := d.Open("export.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "id\n1\n", string(data))

	require.NoError(t, d.Remove("export.csv"))
	require.NoError(t, d.Remove("export.csv"))

	_, err = d.Open("export.csv")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
