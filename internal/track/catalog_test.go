package track

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "oval.json", ovalJSON)
	writeFile(t, dir, "bean.yml", `
name: bean
segments:
  - {type: straight, lengthPx: 400}
  - {type: curve, radiusPx: 200, angleDeg: 180, dir: left}
  - {type: straight, lengthPx: 400}
  - {type: curve, radiusPx: 200, angleDeg: 180, dir: left}
`)
	writeFile(t, dir, "broken.json", `{"name": "broken", "segments": [{"type": "loop"}]}`)
	writeFile(t, dir, "README.md", "not a track")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o700))

	c, err := NewCatalog(dir, mpp)
	require.NoError(t, err)

	assert.Equal(t, []string{"bean", "oval"}, c.Names())
	assert.Equal(t, 2, c.Len())

	trk, ok := c.Get("oval")
	require.True(t, ok)
	assert.Equal(t, newOval(t).TotalLength, trk.TotalLength)

	_, ok = c.Get("broken")
	assert.False(t, ok)
}

func TestNewCatalog_MissingDir(t *testing.T) {
	_, err := NewCatalog(filepath.Join(t.TempDir(), "missing"), mpp)
	assert.Error(t, err)
}

func TestCatalog_AddAndReload(t *testing.T) {
	c, err := NewCatalog("", mpp)
	require.NoError(t, err)
	assert.Zero(t, c.Len())

	c.Add(newOval(t))
	_, ok := c.Get("oval")
	assert.True(t, ok)

	dir := t.TempDir()
	c, err = NewCatalog(dir, mpp)
	require.NoError(t, err)
	assert.Empty(t, c.Names())

	writeFile(t, dir, "oval.json", ovalJSON)
	require.NoError(t, c.Reload())
	assert.Equal(t, []string{"oval"}, c.Names())

	require.NoError(t, os.Remove(filepath.Join(dir, "oval.json")))
	require.NoError(t, c.Reload())
	assert.Empty(t, c.Names())
}

func TestCatalog_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "oval.json", ovalJSON)

	c, err := NewCatalog(dir, mpp)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	require.Eventually(t, func() bool {
		// keep writing until the watcher is up and has seen a change
		writeFile(t, dir, "bean.yaml", strings.Replace(ovalYAML, "name: oval", "name: bean", 1))
		return c.Len() == 2
	}, 5*time.Second, 50*time.Millisecond)

	writeFile(t, dir, "tri.json", `{"segments": [
		{"type": "straight", "lengthPx": 300},
		{"type": "curve", "radiusPx": 100, "angleDeg": 120, "dir": "left"},
		{"type": "straight", "lengthPx": 300},
		{"type": "curve", "radiusPx": 100, "angleDeg": 120, "dir": "left"},
		{"type": "straight", "lengthPx": 300},
		{"type": "curve", "radiusPx": 100, "angleDeg": 120, "dir": "left"}
	]}`)
	require.Eventually(t, func() bool {
		return slices.Contains(c.Names(), "tri")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
