package ports

import "context"

// Source is the inbound byte stream from the meter. Read failures surface as
// typed errors (meterconn.ErrTimeout, meterconn.ErrConnection); recovery is
// the caller's job via Reconnect, the source never loops internally.
type Source interface {
	Connect(ctx context.Context) error
	Read(p []byte) (int, error)
	Reconnect(ctx context.Context) error
	Close() error
}
