package domain

// FileChunk is the unit of work carried through the scheduler. sequence_number
// and offset are assigned once by the file reader and never rewritten by a
// stage; only Data and Checksum may change as the chunk traverses the stage
// graph.
type FileChunk struct {
	SequenceNumber ChunkId
	Offset         uint64
	Data           []byte
	IsFinal        bool
	// Checksum is populated only by integrity (Checksum) stages; every
	// other stage leaves it untouched.
	Checksum *[32]byte
}

// NewFileChunk constructs a chunk as the reader would: sequence/offset fixed,
// no checksum yet attached.
func NewFileChunk(seq ChunkId, offset uint64, data []byte, isFinal bool) FileChunk {
	return FileChunk{
		SequenceNumber: seq,
		Offset:         offset,
		Data:           data,
		IsFinal:        isFinal,
	}
}

// WithPayload returns a copy of the chunk with Data replaced and every other
// field preserved. This is the only sanctioned way a stage mutates a chunk.
func (c FileChunk) WithPayload(data []byte) FileChunk {
	c.Data = data
	return c
}

// WithChecksum returns a copy of the chunk with Checksum set, all other
// fields preserved.
func (c FileChunk) WithChecksum(sum [32]byte) FileChunk {
	c.Checksum = &sum
	return c
}

// Size returns the current payload length.
func (c FileChunk) Size() int {
	return len(c.Data)
}
