package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/objsync/objsync/internal/store"
)

// copier transfers single objects from source to destination. It picks
// one strategy per object and sticks with it across retries: express
// (server-side copy) when both locations share a store handle, streamed
// (read from source, upload to destination) otherwise. A failed streamed
// copy restarts the whole object from byte zero on retry; there is no
// partial resume.
type copier struct {
	source      Location
	destination Location
	maxRetries  int
	express     bool
	log         *slog.Logger
}

// copy transfers one object, retrying up to maxRetries attempts of the
// same strategy with no inter-attempt delay. Each failed attempt is
// logged; the final error is returned for tallying, and the caller's
// verify pass is the authoritative success signal.
func (c *copier) copy(ctx context.Context, obj store.Object) error {
	dstKey := PrefixTranslator(c.source.Prefix, c.destination.Prefix)(obj.Key)

	op := c.streamed
	strategy := "streamed"
	if c.express {
		op = c.serverSide
		strategy = "express"
	}

	att := 0
	err := attempt(ctx, c.maxRetries, 0, func(ctx context.Context) error {
		att++
		if err := op(ctx, obj, dstKey); err != nil {
			c.log.Warn("copy attempt failed",
				"key", obj.Key,
				"strategy", strategy,
				"attempt", att,
				"error", err,
			)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("copy %s: %w", obj.Key, err)
	}
	return nil
}

func (c *copier) serverSide(ctx context.Context, obj store.Object, dstKey string) error {
	return c.destination.Store.ServerSideCopy(ctx,
		c.source.Bucket, obj.Key,
		c.destination.Bucket, dstKey,
	)
}

func (c *copier) streamed(ctx context.Context, obj store.Object, dstKey string) error {
	body, err := c.source.Store.OpenRead(ctx, c.source.Bucket, obj.Key)
	if err != nil {
		return err
	}
	defer body.Close()
	return c.destination.Store.Upload(ctx, c.destination.Bucket, dstKey, body, obj.Size)
}
