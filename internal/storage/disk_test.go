package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadastra/pkg/platform/sentinel"
)

func TestDiskRoundTrip(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	payload := []byte("scanned title deed")

	path, err := disk.Save(ctx, payload, "deed.pdf", "officer-1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".pdf"))

	got, err := disk.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	exists, err := disk.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, disk.Delete(ctx, path))

	exists, err = disk.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDiskUniquePaths(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	p1, err := disk.Save(ctx, []byte("a"), "deed.pdf", "u")
	require.NoError(t, err)
	p2, err := disk.Save(ctx, []byte("b"), "deed.pdf", "u")
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestDiskMissingPath(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	_, err = disk.Read(ctx, "nope.pdf")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	err = disk.Delete(ctx, "nope.pdf")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDiskSanitizesFilename(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	path, err := disk.Save(ctx, []byte("x"), "../../etc/passwd", "u")
	require.NoError(t, err)
	assert.NotContains(t, path, "..")
	assert.NotContains(t, path, "/")
}
