package socket

import (
	"bufio"
	"bytes"
	"io"
)

// Delimiter terminates every message on the wire.
const Delimiter = '\n'

// DefaultMaxMessageBytes bounds a single line.
const DefaultMaxMessageBytes = 4 << 20

// splitMessages is a bufio.SplitFunc that yields newline terminated frames.
// Unlike bufio.ScanLines a final fragment without a delimiter is dropped.
func splitMessages(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexByte(data, Delimiter); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		// Consume the partial tail without yielding it.
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// newScanner returns a scanner over r yielding one message per line.
func newScanner(r io.Reader, maxBytes int) *bufio.Scanner {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	initial := 4096
	if maxBytes < initial {
		initial = maxBytes
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, initial), maxBytes)
	sc.Split(splitMessages)
	return sc
}

// blank reports whether a frame holds only whitespace.
func blank(frame []byte) bool {
	return len(bytes.TrimSpace(frame)) == 0
}
