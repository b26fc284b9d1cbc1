package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/event"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDirSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "E1.jsonl", record(1)+"\n\n"+record(2)+"\nnot json\n"+record(3)+"\n")
	s := NewDir(dir)

	raws, err := s.Fetch(context.Background(), "E1", 1)
	require.NoError(t, err)
	require.Len(t, raws, 3)

	seq, _ := raws[0].Seq()
	assert.Equal(t, int64(2), seq)
	assert.Equal(t, event.Raw{}, raws[1])
}

func TestDirSource_MissingFile(t *testing.T) {
	s := NewDir(t.TempDir())
	raws, err := s.Fetch(context.Background(), "E9", 0)
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestDirSource_RejectsPathEntityIDs(t *testing.T) {
	s := NewDir(t.TempDir())
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		_, err := s.Fetch(context.Background(), id, 0)
		assert.Error(t, err, "id %q", id)
	}
}

func TestDirSource_Discover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "E2.jsonl", "")
	writeFile(t, dir, "E1.jsonl", "")
	writeFile(t, dir, "README.md", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "E3.jsonl"), 0o755))

	ids, err := NewDir(dir).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"E1", "E2"}, ids)
}

func TestDirSource_DiscoverMissingRoot(t *testing.T) {
	_, err := NewDir(filepath.Join(t.TempDir(), "nope")).Discover(context.Background())
	assert.Error(t, err)
}
