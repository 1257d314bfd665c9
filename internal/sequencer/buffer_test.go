package sequencer

import (
	"testing"

	"github.com/satriahrh/voicerelay/domain/entities"
)

func TestBuffer_FirstWriteWins(t *testing.T) {
	buffer := NewBuffer()

	first := entities.Chunk{MessageID: "m1", Sequence: 1, Audio: &entities.Audio{Src: "first.mp3"}}
	second := entities.Chunk{MessageID: "m1", Sequence: 1, Final: true}

	if !buffer.Put(first) {
		t.Fatal("First put should succeed")
	}
	if buffer.Put(second) {
		t.Error("Duplicate put should be rejected")
	}

	chunk, ok := buffer.Take("m1", 1)
	if !ok {
		t.Fatal("Expected chunk at sequence 1")
	}
	if chunk.Audio == nil || chunk.Audio.Src != "first.mp3" {
		t.Errorf("Expected first chunk to win, got %+v", chunk)
	}

	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer after take, got %d", buffer.Len())
	}
}

func TestBuffer_KeysIncludeMessageID(t *testing.T) {
	buffer := NewBuffer()

	buffer.Put(entities.Chunk{MessageID: "m1", Sequence: 0})
	if !buffer.Put(entities.Chunk{MessageID: "m2", Sequence: 0}) {
		t.Error("Same sequence under another message should be accepted")
	}

	if _, ok := buffer.Take("m3", 0); ok {
		t.Error("Take should not match an unknown message")
	}
}

func TestBuffer_HasAfter(t *testing.T) {
	buffer := NewBuffer()
	buffer.Put(entities.Chunk{MessageID: "m1", Sequence: 3})
	buffer.Put(entities.Chunk{MessageID: "m2", Sequence: 9})

	if !buffer.HasAfter("m1", 1) {
		t.Error("Expected a chunk after cursor 1 for m1")
	}
	if buffer.HasAfter("m1", 3) {
		t.Error("Sequence equal to the cursor is not after it")
	}
	if buffer.HasAfter("m1", 5) {
		t.Error("Chunks of other messages must not count")
	}

	buffer.Clear()
	if buffer.Len() != 0 || buffer.HasAfter("m2", 0) {
		t.Error("Clear should drop every chunk")
	}
}
