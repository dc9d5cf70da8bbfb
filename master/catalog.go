package master

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/models"
)

// Catalog owns the namenode metadata: file entries, chunk placements and datanode
// descriptors. Every access goes through mu; nothing here blocks on the network.
type Catalog struct {
	mu   sync.Mutex
	path string
	meta models.CatalogSnapshot
}

// DefaultSnapshot is the catalog a namenode starts with when no snapshot exists.
func DefaultSnapshot(replicas []helper.NodeConfig) models.CatalogSnapshot {
	meta := models.CatalogSnapshot{
		Files:     make(map[string][]string),
		Chunks:    make(map[string][]string),
		DataNodes: make(map[string]models.NodeDescriptor),
	}
	for _, r := range replicas {
		meta.DataNodes[r.ID] = models.NodeDescriptor{Host: r.Host, Port: r.Port}
	}
	return meta
}

// OpenCatalog restores the snapshot at path, or starts from the default node table
// when there is none. An unreadable snapshot is an error. An empty path keeps the
// catalog in memory only.
func OpenCatalog(path string, replicas []helper.NodeConfig) (*Catalog, error) {
	c := &Catalog{path: path, meta: DefaultSnapshot(replicas)}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Printf("[Namenode] No snapshot at %s, starting with %d default datanodes\n", path, len(replicas))
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %s", path)
	}

	var meta models.CatalogSnapshot
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "decoding snapshot %s", path)
	}
	if meta.Files == nil {
		meta.Files = make(map[string][]string)
	}
	if meta.Chunks == nil {
		meta.Chunks = make(map[string][]string)
	}
	if meta.DataNodes == nil {
		meta.DataNodes = make(map[string]models.NodeDescriptor)
	}
	c.meta = meta
	log.Printf("[Namenode] Restored snapshot %s: %d files, %d chunks, %d datanodes\n",
		path, len(meta.Files), len(meta.Chunks), len(meta.DataNodes))
	return c, nil
}

/* ============================================ FILE ENTRIES  ===========================================*/

// File returns the ordered chunk ids of filename.
func (c *Catalog) File(filename string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.meta.Files[filename]
	return copyStrings(ids), ok
}

// PutFile replaces the entry for filename.
func (c *Catalog) PutFile(filename string, chunkIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta.Files[filename] = copyStrings(chunkIDs)
}

/* ============================================ PLACEMENTS  ===========================================*/

func (c *Catalog) Placement(chunkID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nodes, ok := c.meta.Chunks[chunkID]
	return copyStrings(nodes), ok
}

func (c *Catalog) PutPlacement(chunkID string, nodeIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta.Chunks[chunkID] = copyStrings(nodeIDs)
}

/* ============================================ DATANODES  ===========================================*/

func (c *Catalog) Node(nodeID string) (models.NodeDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nd, ok := c.meta.DataNodes[nodeID]
	return nd, ok
}

// UpsertNode applies update to the descriptor of nodeID, creating it if needed,
// and snapshots the catalog.
func (c *Catalog) UpsertNode(nodeID string, update func(*models.NodeDescriptor)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	nd := c.meta.DataNodes[nodeID]
	update(&nd)
	c.meta.DataNodes[nodeID] = nd
	return c.snapshotLocked()
}

// NodeIDs lists known datanodes in sorted order.
func (c *Catalog) NodeIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.meta.DataNodes))
	for id := range c.meta.DataNodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

/* ============================================ SNAPSHOTS  ===========================================*/

// View returns a deep copy of the whole catalog.
func (c *Catalog) View() models.CatalogSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := models.CatalogSnapshot{
		Files:     make(map[string][]string, len(c.meta.Files)),
		Chunks:    make(map[string][]string, len(c.meta.Chunks)),
		DataNodes: make(map[string]models.NodeDescriptor, len(c.meta.DataNodes)),
	}
	for k, v := range c.meta.Files {
		view.Files[k] = copyStrings(v)
	}
	for k, v := range c.meta.Chunks {
		view.Chunks[k] = copyStrings(v)
	}
	for k, v := range c.meta.DataNodes {
		view.DataNodes[k] = v
	}
	return view
}

// Snapshot rewrites the snapshot file with the current catalog.
func (c *Catalog) Snapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Catalog) snapshotLocked() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c.meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating snapshot")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "writing snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "closing snapshot")
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "replacing snapshot")
	}
	return nil
}

// RunSnapshotter snapshots the catalog every interval until ctx is done.
func (c *Catalog) RunSnapshotter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Snapshot(); err != nil {
				log.Println("[Namenode] Periodic snapshot failed:", err)
			}
		}
	}
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
