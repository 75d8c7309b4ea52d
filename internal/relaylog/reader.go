package relaylog

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
)

// maxLineBytes bounds a single entry the reader will parse. Payloads are
// capped upstream of the log by the request body limit, upstream answers are
// not, so longer lines are skipped like any other malformed line.
const maxLineBytes = 8 << 20

// ReadLastEntries reads the relay log and returns the last n entries,
// oldest first. Malformed and overlong lines are skipped.
// Returns an empty slice if the file is missing or empty.
func ReadLastEntries(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return []Entry{}, nil
	}
	defer f.Close()

	entries := []Entry{}
	err = eachLine(f, maxLineBytes, func(line []byte) {
		e, ok := parse(string(line))
		if !ok {
			return
		}
		entries = append(entries, e)
		if n > 0 && len(entries) > 2*n {
			entries = append(entries[:0], entries[len(entries)-n:]...)
		}
	})
	if err != nil {
		return nil, err
	}

	if n <= 0 || len(entries) <= n {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// eachLine calls fn for every line of r no longer than limit bytes, without
// its trailing newline. Longer lines are drained and dropped.
func eachLine(r io.Reader, limit int, fn func(line []byte)) error {
	br := bufio.NewReaderSize(r, 64*1024)

	var buf []byte
	overlong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !overlong {
			if len(buf)+len(chunk) > limit+1 {
				overlong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err != nil && !errors.Is(err, io.EOF):
			return err
		}

		if !overlong && len(buf) > 0 {
			fn(bytes.TrimRight(buf, "\r\n"))
		}
		buf = buf[:0]
		overlong = false

		if err != nil {
			return nil
		}
	}
}
