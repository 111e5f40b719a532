package session

// Buffer accumulates the raw PCM fragments of one in-progress utterance.
// It is owned by a single session goroutine and needs no locking.
type Buffer struct {
	fragments [][]byte
	size      int
	recording bool
}

// Append adds one binary fragment. The fragment is referenced, not copied;
// callers must not reuse the slice. Appending never fails.
func (b *Buffer) Append(fragment []byte) {
	b.fragments = append(b.fragments, fragment)
	b.size += len(fragment)
	b.recording = true
}

// Len returns the total buffered byte count.
func (b *Buffer) Len() int {
	return b.size
}

// Empty reports whether no fragments have arrived for this utterance.
func (b *Buffer) Empty() bool {
	return len(b.fragments) == 0
}

// Recording reports whether at least one fragment of the current utterance
// has arrived. Used for logging only.
func (b *Buffer) Recording() bool {
	return b.recording
}

// Drain concatenates all fragments into one contiguous PCM byte slice. The
// buffer contents are left in place; call Reset afterwards.
func (b *Buffer) Drain() []byte {
	out := make([]byte, 0, b.size)
	for _, f := range b.fragments {
		out = append(out, f...)
	}
	return out
}

// Reset discards all fragments and clears the recording flag.
func (b *Buffer) Reset() {
	b.fragments = nil
	b.size = 0
	b.recording = false
}
