// Package wire implements the length-prefixed framing shared by the namenode and
// the datanodes: an 8-byte big-endian header length, a JSON header, an 8-byte
// big-endian payload length and the raw payload.
package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/mini_hdfs_project/helper"
)

const (
	CmdStore    = "STORE"
	CmdRetrieve = "RETRIEVE"

	StatusOK       = "OK"
	StatusNotFound = "NOT_FOUND"

	MaxHeaderLen  = 1 << 20
	MaxPayloadLen = 1 << 30
)

// Header is the structured part of a frame. Requests set Cmd, responses set Status.
type Header struct {
	Cmd      string `json:"cmd,omitempty"`
	ChunkID  string `json:"chunk_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Status   string `json:"status,omitempty"`
}

// WriteFrame encodes header and payload onto w in a single buffered write.
func WriteFrame(w io.Writer, header Header, payload []byte) error {
	hdr, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "encoding header")
	}

	bw := bufio.NewWriter(w)
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(hdr)))
	bw.Write(size[:])
	bw.Write(hdr)
	binary.BigEndian.PutUint64(size[:], uint64(len(payload)))
	bw.Write(size[:])
	if len(payload) > 0 {
		bw.Write(payload)
	}
	return errors.Wrap(bw.Flush(), "writing frame")
}

// ReadFrame blocks until one whole frame has been read from r. A stream that ends
// before a declared length is satisfied yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var header Header

	hdrLen, err := readLength(r, MaxHeaderLen)
	if err != nil {
		return header, nil, errors.Wrap(err, "reading header length")
	}
	hdr := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return header, nil, errors.Wrap(unexpected(err), "reading header")
	}
	if err := json.Unmarshal(hdr, &header); err != nil {
		return header, nil, errors.Wrap(err, "decoding header")
	}

	payloadLen, err := readLength(r, MaxPayloadLen)
	if err != nil {
		return header, nil, errors.Wrap(unexpected(err), "reading payload length")
	}
	payload := []byte{}
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return header, nil, errors.Wrap(unexpected(err), "reading payload")
		}
	}
	return header, payload, nil
}

func readLength(r io.Reader, limit uint64) (uint64, error) {
	var size [8]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint64(size[:])
	if n > limit {
		return 0, errors.Wrapf(helper.ErrFrameTooLarge, "%d > %d", n, limit)
	}
	return n, nil
}

// Once a frame has started, a clean EOF is still a truncated message.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
