package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/syncerr"
)

const dirExt = ".jsonl"

// DirSource reads records from a directory holding one <entityId>.jsonl
// file per entity, one JSON record per line. Blank lines are ignored.
type DirSource struct {
	Root string
}

// NewDir creates a DirSource rooted at root.
func NewDir(root string) *DirSource {
	return &DirSource{Root: root}
}

// Fetch returns the records of entityID with a sequence id after afterSeq,
// plus any record without one. A missing file yields no records.
func (d *DirSource) Fetch(ctx context.Context, entityID string, afterSeq int64) ([]event.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entityID == "" || strings.ContainsAny(entityID, `/\`) || entityID == "." || entityID == ".." {
		return nil, syncerr.ExternalIO(entityID, "fetch events", fmt.Errorf("invalid entity id %q", entityID))
	}

	data, err := os.ReadFile(filepath.Join(d.Root, entityID+dirExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, syncerr.ExternalIO(entityID, "fetch events", err)
	}

	var out []event.Raw
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		r := decodeRecord(line)
		if seq, ok := r.Seq(); ok && seq <= afterSeq {
			continue
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, syncerr.ExternalIO(entityID, "read events", err)
	}
	return out, nil
}

// Discover lists entity ids from the .jsonl files in Root, sorted.
func (d *DirSource) Discover(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, syncerr.ExternalIO("", "discover entities", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), dirExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), dirExt))
	}
	sort.Strings(ids)
	return ids, nil
}
