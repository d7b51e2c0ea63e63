package ports

import "github.com/mcmd1962/p1-slimmelezer/internal/domain"

// Publisher hands a finalized telegram to a local listener group. Publish
// errors are unrecoverable by contract: the caller aborts the process rather
// than retrying.
type Publisher interface {
	Publish(msg *domain.Message) error
	Name() string
	Close() error
}
