package headless

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxCapture bounds how much of each stream is kept in memory.
const DefaultMaxCapture = 64 << 20

// PipeReader drains a subprocess's stdout and stderr concurrently. Both
// streams are read to EOF before Drain returns, so a child that fills one
// pipe while the other is idle can never block.
type PipeReader struct {
	// MaxCapture is the per-stream retention limit in bytes. Zero means
	// DefaultMaxCapture. Bytes beyond it are read and discarded.
	MaxCapture int

	// OnStdoutLine, when set, is called for each complete stdout line from
	// the draining goroutine. It must not block.
	OnStdoutLine func(line string)
}

// Drained holds the captured streams.
type Drained struct {
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
}

// Drain reads both streams to completion. An error from either reader is
// returned after both have finished.
func (p *PipeReader) Drain(stdout, stderr io.Reader) (Drained, error) {
	limit := p.MaxCapture
	if limit <= 0 {
		limit = DefaultMaxCapture
	}

	outBuf := &cappedBuffer{limit: limit}
	errBuf := &cappedBuffer{limit: limit}

	var g errgroup.Group
	g.Go(func() error {
		if err := drainLines(stdout, outBuf, p.OnStdoutLine); err != nil {
			return fmt.Errorf("failed to drain stdout: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := io.Copy(errBuf, stderr); err != nil {
			return fmt.Errorf("failed to drain stderr: %w", err)
		}
		return nil
	})
	err := g.Wait()

	return Drained{
		Stdout:          outBuf.String(),
		Stderr:          errBuf.String(),
		StdoutTruncated: outBuf.dropped > 0,
		StderrTruncated: errBuf.dropped > 0,
	}, err
}

// maxTapLine caps how much of one line is buffered for the tap.
const maxTapLine = 1 << 20

// drainLines copies r into w, calling tap for every complete line.
func drainLines(r io.Reader, w io.Writer, tap func(string)) error {
	if tap == nil {
		_, err := io.Copy(w, r)
		return err
	}

	br := bufio.NewReaderSize(r, 64*1024)
	var pending bytes.Buffer
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			_, _ = w.Write(chunk)
			if pending.Len() < maxTapLine {
				pending.Write(chunk)
			}
			if chunk[len(chunk)-1] == '\n' {
				tap(string(bytes.TrimRight(pending.Bytes(), "\r\n")))
				pending.Reset()
			}
		}
		switch err {
		case nil, bufio.ErrBufferFull:
			continue
		case io.EOF:
			if pending.Len() > 0 {
				tap(pending.String())
			}
			return nil
		default:
			return err
		}
	}
}

// cappedBuffer keeps the first limit bytes and counts the rest.
type cappedBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped int64
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	switch {
	case room <= 0:
		c.dropped += int64(len(p))
	case len(p) > room:
		c.buf.Write(p[:room])
		c.dropped += int64(len(p) - room)
	default:
		c.buf.Write(p)
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}
