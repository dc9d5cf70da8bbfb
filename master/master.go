package master

import (
	"context"
	"io"
	"log"
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/models"
)

// ChunkStore is the datanode side of the chunk protocol as seen by the namenode.
type ChunkStore interface {
	Store(ctx context.Context, addr, chunkID, filename string, data []byte) error
	Retrieve(ctx context.Context, addr, chunkID string) ([]byte, error)
}

// MissingChunkError reports a chunk that no recorded replica could return.
type MissingChunkError struct {
	ChunkID string
}

func (e *MissingChunkError) Error() string {
	return "missing chunk " + e.ChunkID
}

func (e *MissingChunkError) Unwrap() error {
	return helper.ErrMissingChunk
}

// MasterNode splits uploads into chunks, replicates them to the fixed replica
// set in order and reassembles downloads from the first replica that answers.
type MasterNode struct {
	Catalog  *Catalog
	Registry *LivenessRegistry

	store     ChunkStore
	chunkSize int
	replicas  []helper.NodeConfig
}

func NewMasterNode(catalog *Catalog, registry *LivenessRegistry, store ChunkStore, cfg helper.MasterConfig) *MasterNode {
	replicas := make([]helper.NodeConfig, len(cfg.Replicas))
	copy(replicas, cfg.Replicas)
	return &MasterNode{
		Catalog:   catalog,
		Registry:  registry,
		store:     store,
		chunkSize: cfg.ChunkSize,
		replicas:  replicas,
	}
}

/* ============================================ HELPER FUNCTIONS  ===========================================*/

// nodeAddr resolves a datanode from its catalog descriptor, falling back to the
// configured replica table.
func (mn *MasterNode) nodeAddr(nodeID string) (string, error) {
	if nd, ok := mn.Catalog.Node(nodeID); ok && nd.Host != "" && nd.Port > 0 {
		return net.JoinHostPort(nd.Host, strconv.Itoa(nd.Port)), nil
	}
	for _, r := range mn.replicas {
		if r.ID == nodeID {
			return net.JoinHostPort(r.Host, strconv.Itoa(r.Port)), nil
		}
	}
	return "", errors.Wrapf(helper.ErrUnknownNode, "%q", nodeID)
}

func (mn *MasterNode) storeChunkToNode(ctx context.Context, chunkID string, data []byte, nodeID, filename string) error {
	addr, err := mn.nodeAddr(nodeID)
	if err != nil {
		return err
	}
	return mn.store.Store(ctx, addr, chunkID, filename, data)
}

func (mn *MasterNode) retrieveChunkFromNode(ctx context.Context, chunkID, nodeID string) ([]byte, error) {
	addr, err := mn.nodeAddr(nodeID)
	if err != nil {
		return nil, err
	}
	return mn.store.Retrieve(ctx, addr, chunkID)
}

/* ============================================ FILE OPERATIONS  ===========================================*/

// Upload stores the stream under filename. Each chunk gets a fresh id and is sent
// to every replica in configured order; whichever replicas confirm are recorded.
// A chunk no replica accepted is recorded with an empty placement and listed in
// UnderReplicated, but does not fail the upload.
func (mn *MasterNode) Upload(ctx context.Context, filename string, r io.Reader) (models.UploadResult, error) {
	result := models.UploadResult{Filename: filename, ChunkIDs: []string{}}
	if filename == "" {
		return result, errors.New("empty filename")
	}

	log.Printf("[Namenode] Upload initiated for %q\n", filename)
	buf := make([]byte, mn.chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunkID := helper.NewChunkID()
			successes := mn.replicate(ctx, chunkID, buf[:n], filename)
			mn.Catalog.PutPlacement(chunkID, successes)

			result.ChunkIDs = append(result.ChunkIDs, chunkID)
			result.Size += int64(n)
			if len(successes) < len(mn.replicas) {
				result.UnderReplicated = append(result.UnderReplicated, chunkID)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return result, errors.Wrapf(err, "reading upload %q", filename)
		}
	}

	mn.Catalog.PutFile(filename, result.ChunkIDs)
	if err := mn.Catalog.Snapshot(); err != nil {
		log.Printf("[Namenode] Snapshot after upload of %q failed: %v\n", filename, err)
	}

	log.Printf("[Namenode] Upload completed for %q: %d bytes in %d chunks\n", filename, result.Size, len(result.ChunkIDs))
	if len(result.UnderReplicated) > 0 {
		log.Printf("[Namenode] WARNING %d chunks of %q are under-replicated: %v\n", len(result.UnderReplicated), filename, result.UnderReplicated)
	}
	return result, nil
}

func (mn *MasterNode) replicate(ctx context.Context, chunkID string, data []byte, filename string) []string {
	log.Printf("[Namenode] Processing chunk %s (%d bytes)\n", helper.ShortID(chunkID), len(data))
	successes := []string{}
	for _, replica := range mn.replicas {
		if err := mn.storeChunkToNode(ctx, chunkID, data, replica.ID, filename); err != nil {
			log.Printf("[Namenode] Failed to store chunk %s in datanode %s: %v\n", helper.ShortID(chunkID), replica.ID, err)
			continue
		}
		log.Printf("[Namenode] Chunk %s stored in datanode %s\n", helper.ShortID(chunkID), replica.ID)
		successes = append(successes, replica.ID)
	}
	return successes
}

// Download reassembles filename. It fails with helper.ErrFileNotFound for an
// unknown name and with a *MissingChunkError when some chunk has no replica that
// returns it; no partial content is returned.
func (mn *MasterNode) Download(ctx context.Context, filename string) ([]byte, error) {
	chunkIDs, ok := mn.Catalog.File(filename)
	if !ok {
		return nil, errors.Wrapf(helper.ErrFileNotFound, "%q", filename)
	}

	log.Printf("[Namenode] Download requested for %q (%d chunks)\n", filename, len(chunkIDs))
	assembled := make([]byte, 0, len(chunkIDs)*mn.chunkSize)
	for _, chunkID := range chunkIDs {
		data, err := mn.fetchChunk(ctx, chunkID)
		if err != nil {
			log.Printf("[Namenode] Missing chunk %s, cannot assemble %q\n", chunkID, filename)
			return nil, err
		}
		assembled = append(assembled, data...)
	}

	log.Printf("[Namenode] Reassembled %q (%d bytes)\n", filename, len(assembled))
	return assembled, nil
}

// fetchChunk tries the recorded replicas in order and stops at the first success.
func (mn *MasterNode) fetchChunk(ctx context.Context, chunkID string) ([]byte, error) {
	nodes, _ := mn.Catalog.Placement(chunkID)
	log.Printf("[Namenode] Retrieving chunk %s from nodes %v\n", helper.ShortID(chunkID), nodes)
	for _, nodeID := range nodes {
		data, err := mn.retrieveChunkFromNode(ctx, chunkID, nodeID)
		if err != nil {
			log.Printf("[Namenode] Chunk %s not retrieved from datanode %s: %v\n", helper.ShortID(chunkID), nodeID, err)
			continue
		}
		return data, nil
	}
	return nil, &MissingChunkError{ChunkID: chunkID}
}

// Status is the read-only view behind the status page.
func (mn *MasterNode) Status() models.ClusterStatus {
	view := mn.Catalog.View()
	return models.ClusterStatus{
		DataNodes: mn.Registry.Statuses(),
		Files:     view.Files,
		Chunks:    view.Chunks,
	}
}
