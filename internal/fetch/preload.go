package fetch

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// preloadConcurrency bounds how many warming fetches run at once.
const preloadConcurrency = 4

// Preload warms the cache for key in the background. Any failure is
// logged and swallowed; it never surfaces to a caller.
func (f *Fetcher) Preload(key string, op Operation, opts Options) {
	go func() {
		if _, err := f.Do(context.Background(), key, op, opts); err != nil {
			logrus.Debugf("Preload failed for %s: %v", key, err)
		}
	}()
}

// PreloadURLs warms the cache for a set of GET URLs and returns once
// they have all settled. Individual failures are logged and swallowed.
func (f *Fetcher) PreloadURLs(ctx context.Context, urls []string, opts Options) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadConcurrency)

	for _, rawURL := range urls {
		rawURL := rawURL
		g.Go(func() error {
			if _, err := f.FetchURL(ctx, http.MethodGet, rawURL, nil, opts); err != nil {
				logrus.Debugf("Preload failed for %s: %v", rawURL, err)
			}
			return nil
		})
	}

	_ = g.Wait()
}
