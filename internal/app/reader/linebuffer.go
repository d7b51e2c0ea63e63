package reader

import (
	"bytes"
	"context"

	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

const delimiter = "\r\n"

// lineSource is what the framer consumes; satisfied by LineReader and by
// scripted fakes in tests.
type lineSource interface {
	NextLine(ctx context.Context) (string, error)
}

// LineReader turns the raw byte stream into delimiter-terminated lines. The
// buffer is append-only across reconnects: a read failure reopens the socket
// but never discards bytes already received, so partial lines survive.
type LineReader struct {
	src   ports.Source
	obs   ports.Observability
	buf   []byte
	chunk [1024]byte
}

func NewLineReader(src ports.Source, obs ports.Observability) *LineReader {
	return &LineReader{src: src, obs: obs}
}

// NextLine returns the next line with the trailing delimiter stripped,
// pulling more bytes from the source as needed. Read failures are recovered
// locally by reconnecting; only context cancellation or a failed reconnect
// propagate.
func (r *LineReader) NextLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for !bytes.Contains(r.buf, []byte(delimiter)) {
		n, err := r.src.Read(r.chunk[:])
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			r.obs.LogWarn("p1 read failed, reopening connection",
				ports.Field{Key: "error", Value: err.Error()},
				ports.Field{Key: "buffered", Value: len(r.buf)})
			if rerr := r.src.Reconnect(ctx); rerr != nil {
				return "", rerr
			}
		}
	}

	idx := bytes.Index(r.buf, []byte(delimiter))
	line := string(r.buf[:idx])
	r.buf = append(r.buf[:0], r.buf[idx+len(delimiter):]...)
	return line, nil
}
