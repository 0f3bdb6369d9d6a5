package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gcsdrive/gcsdrive-go/internal/gcsclient"
)

// enumerateBuckets builds the full bucket directory: every bucket of every
// active project visible to the caller's identity. Projects are listed
// first (paginated), then one producer goroutine per active project pages
// through its buckets and feeds a shared channel; the calling goroutine is
// the single consumer and the only writer to the returned map, so no
// locking guards it.
//
// A 403 from one project's bucket listing drops that project silently; any
// other per-project fault is collected and returned joined AFTER the drain
// finishes, alongside the (still usable) partial map. Only a failure to
// list the projects themselves aborts with a nil map.
func (p *Provider) enumerateBuckets(ctx context.Context, emit func(*gcsclient.Bucket) error) (map[string]*gcsclient.Bucket, error) {
	var projects []string
	token := ""
	for {
		page, err := p.client.ListProjects(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}
		for _, proj := range page.Projects {
			if proj.Active() {
				projects = append(projects, proj.ID)
			}
		}
		if page.NextPageToken == "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		token = page.NextPageToken
	}

	type result struct {
		bucket *gcsclient.Bucket
		err    error
	}
	results := make(chan result)

	var wg sync.WaitGroup
	for _, projectID := range projects {
		wg.Add(1)
		go func(projectID string) {
			defer wg.Done()
			token := ""
			for {
				page, err := p.client.ListBuckets(ctx, projectID, token)
				if err != nil {
					if gcsclient.IsForbidden(err) {
						// Best-effort: an inaccessible
						// project just contributes
						// nothing.
						return
					}
					results <- result{err: fmt.Errorf("project %s: %w", projectID, err)}
					return
				}
				for _, b := range page.Buckets {
					results <- result{bucket: b}
				}
				if page.NextPageToken == "" || ctx.Err() != nil {
					return
				}
				token = page.NextPageToken
			}
		}(projectID)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	buckets := make(map[string]*gcsclient.Bucket)
	var faults []error
	for r := range results {
		if r.err != nil {
			faults = append(faults, r.err)
			continue
		}
		buckets[r.bucket.Name] = r.bucket
		if emit != nil {
			if err := emit(r.bucket); err != nil {
				// Keep draining so producers can finish, but
				// stop forwarding.
				faults = append(faults, err)
				emit = nil
			}
		}
	}
	return buckets, errors.Join(faults...)
}

// deleteAllObjects empties a bucket: every page of the listing dispatches
// one asynchronous delete per object, and once dispatching ends (listing
// exhausted or context cancelled) all in-flight deletes are awaited with
// incremental progress reports. In-flight deletes always run to
// completion; cancellation only stops new dispatch.
func (p *Provider) deleteAllObjects(ctx context.Context, bucket string) error {
	var futures []chan error

	query := gcsclient.ListQuery{}
	token := ""
dispatch:
	for {
		query.PageToken = token
		page, err := p.client.ListObjects(ctx, bucket, query)
		if err != nil {
			return err
		}
		for _, obj := range page.Objects {
			if ctx.Err() != nil {
				break dispatch
			}
			errc := make(chan error, 1)
			go func(key string) {
				errc <- p.client.DeleteObject(ctx, bucket, key)
			}(obj.Name)
			futures = append(futures, errc)
		}
		if page.NextPageToken == "" || ctx.Err() != nil {
			break
		}
		token = page.NextPageToken
	}

	total := len(futures)
	var faults []error
	for i, errc := range futures {
		if err := <-errc; err != nil && !gcsclient.IsNotFound(err) {
			faults = append(faults, err)
		}
		p.reportProgress(i+1, total)
	}
	p.reportProgress(total, total)

	if err := errors.Join(faults...); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Provider) reportProgress(completed, total int) {
	if p.progress != nil {
		p.progress(completed, total)
	}
}
