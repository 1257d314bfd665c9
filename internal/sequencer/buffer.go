package sequencer

import "github.com/satriahrh/voicerelay/domain/entities"

type chunkKey struct {
	messageID string
	sequence  int
}

// Buffer holds pending chunks keyed by (messageId, sequence).
// The first chunk stored under a key wins.
type Buffer struct {
	chunks map[chunkKey]entities.Chunk
}

// NewBuffer creates an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{chunks: make(map[chunkKey]entities.Chunk)}
}

// Put stores the chunk and reports false if the key was already taken
func (b *Buffer) Put(chunk entities.Chunk) bool {
	key := chunkKey{chunk.MessageID, chunk.Sequence}
	if _, exists := b.chunks[key]; exists {
		return false
	}
	b.chunks[key] = chunk
	return true
}

// Take removes and returns the chunk at the given key
func (b *Buffer) Take(messageID string, sequence int) (entities.Chunk, bool) {
	key := chunkKey{messageID, sequence}
	chunk, ok := b.chunks[key]
	if ok {
		delete(b.chunks, key)
	}
	return chunk, ok
}

// HasAfter reports whether any chunk of messageID has a sequence greater than cursor
func (b *Buffer) HasAfter(messageID string, cursor int) bool {
	for key := range b.chunks {
		if key.messageID == messageID && key.sequence > cursor {
			return true
		}
	}
	return false
}

// Len returns the number of buffered chunks
func (b *Buffer) Len() int {
	return len(b.chunks)
}

// Clear discards every buffered chunk
func (b *Buffer) Clear() {
	clear(b.chunks)
}
