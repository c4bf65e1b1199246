package syncer

import (
	"context"
	"fmt"

	"github.com/objsync/objsync/internal/store"
)

// listObjects enumerates every object under the location's prefix,
// following continuation tokens until the listing is drained. Any page
// failure aborts the whole listing; no partial map is returned. The map
// is complete for the prefix at the instant each page was fetched, with
// no cross-page consistency guarantee; that is acceptable because sync
// runs are idempotent and re-runnable.
func listObjects(ctx context.Context, loc Location) (map[string]store.Object, error) {
	objects := make(map[string]store.Object)

	token := ""
	for {
		page, err := loc.Store.ListPage(ctx, loc.Bucket, loc.Prefix, token)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", loc.String(), err)
		}
		for _, obj := range page.Objects {
			objects[obj.Key] = obj
		}
		if page.NextToken == "" {
			return objects, nil
		}
		token = page.NextToken
	}
}
