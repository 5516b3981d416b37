package dataloader

import (
	"context"
	"net/http"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/graph-gophers/dataloader"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders are the request-scoped batch loaders.
type Loaders struct {
	// WorkedByPostID resolves whether the requesting user has worked a post.
	WorkedByPostID *dataloader.Loader
}

// NewLoaders builds loaders for one viewer. Anonymous viewers have worked
// nothing and never reach the store.
func NewLoaders(store storage.Reader, viewer identity.Identity) *Loaders {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))
		if !viewer.Authenticated() {
			for i := range results {
				results[i] = &dataloader.Result{Data: false}
			}
			return results
		}

		// One query for every post of the batch
		worked, err := store.GetWorkedPostIDs(ctx, viewer.UserID, keys.Keys())
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		for i, k := range keys {
			results[i] = &dataloader.Result{Data: worked[k.String()]}
		}
		return results
	}

	return &Loaders{
		WorkedByPostID: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond*1)),
	}
}

// Middleware puts loaders for the request's identity into the context. It
// must run after the identity middleware.
func Middleware(store storage.Reader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loaders := NewLoaders(store, identity.FromContext(r.Context()))
			ctx := context.WithValue(r.Context(), key, loaders)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// For returns the request's loaders, or nil outside Middleware.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(key).(*Loaders)
	return loaders
}

// Worked resolves the viewer's work state for postIDs in one batch.
func (l *Loaders) Worked(ctx context.Context, postIDs []string) (map[string]bool, error) {
	values, errs := l.WorkedByPostID.LoadMany(ctx, dataloader.NewKeysFromStrings(postIDs))()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]bool, len(postIDs))
	for i, id := range postIDs {
		if i < len(values) {
			out[id], _ = values[i].(bool)
		}
	}
	return out, nil
}
