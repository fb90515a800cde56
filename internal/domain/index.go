package domain

import (
	"context"
	"time"
)

// Index resolves sources and observation times to source images. It is backed
// by the image database, which lives outside this module.
type Index interface {
	SourceID(ctx context.Context, src Source) (int, error)
	Nearest(ctx context.Context, sourceID int, t time.Time) (ImageRecord, error)
}
