// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"bytes"
	"errors"
	"io"
)

// readChunk is the size of a single read from the socket.
const readChunk = 4096

// lineReader buffers socket input and splits it on '\n'.
// It never blocks: a fill that would block surfaces iox.ErrWouldBlock and
// keeps whatever was buffered so far for the next attempt.
type lineReader struct {
	buf  []byte
	max  int
	eof  bool
	fill func(fd int, p []byte) (int, error)
}

// readLine returns the next line including its terminator.
// At end of stream a trailing partial line is returned once, then
// ErrPeerClosed.
func (lr *lineReader) readLine(fd int) (string, error) {
	var chunk [readChunk]byte
	for {
		if i := bytes.IndexByte(lr.buf, '\n'); i >= 0 {
			line := string(lr.buf[:i+1])
			lr.buf = lr.buf[:copy(lr.buf, lr.buf[i+1:])]
			return line, nil
		}
		if lr.max > 0 && len(lr.buf) >= lr.max {
			return "", ErrLineTooLong
		}
		if lr.eof {
			if len(lr.buf) > 0 {
				line := string(lr.buf)
				lr.buf = lr.buf[:0]
				return line, nil
			}
			return "", ErrPeerClosed
		}
		n, err := lr.read(fd, chunk[:])
		lr.buf = append(lr.buf, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			lr.eof = true
			continue
		}
		if err != nil {
			return "", err
		}
	}
}

func (lr *lineReader) read(fd int, p []byte) (int, error) {
	if lr.fill != nil {
		return lr.fill(fd, p)
	}
	return readFD(fd, p)
}

// release drops the buffer.
func (lr *lineReader) release() {
	lr.buf = nil
	lr.eof = true
}
