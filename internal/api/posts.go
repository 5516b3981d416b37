package api

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/dataloader"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/posts"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

const (
	defaultFeedLimit = 10
	maxUploadMemory  = 32 << 20
)

// PostView is a post as the viewer's session sees it.
type PostView struct {
	*domain.Post
	Worked     bool  `json:"worked"`
	WorksCount int64 `json:"worksCount"`
}

// views primes the viewer's session with batched work state and renders
// the posts through it.
func (s *Server) views(ctx context.Context, viewer identity.Identity, list []*domain.Post) ([]PostView, error) {
	ids := lo.Map(list, func(p *domain.Post, _ int) string { return p.ID })
	worked := map[string]bool{}
	if loaders := dataloader.For(ctx); loaders != nil && len(ids) > 0 {
		var err error
		if worked, err = loaders.Worked(ctx, ids); err != nil {
			return nil, err
		}
	}

	engine := s.Works.For(viewer)
	return lo.Map(list, func(p *domain.Post, _ int) PostView {
		engine.Prime(p, worked[p.ID])
		state, _ := engine.State(p.ID)
		return PostView{Post: p, Worked: state.Worked, WorksCount: state.WorksCount}
	}), nil
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	limit, err := intParam(r, "limit", defaultFeedLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := s.Posts.Feed(r.Context(), viewer, min(limit, maxPageSize), offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.views(r.Context(), viewer, page.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"hasMore":    page.HasMore,
		"nextOffset": page.NextOffset,
	})
}

type postKey struct{}

// visiblePost guards every route under /posts/{postID}: the post must exist
// and be visible to the caller. The post is handed on in the context.
func (s *Server) visiblePost(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		post, err := s.Posts.Get(r.Context(), identity.FromContext(r.Context()), chi.URLParam(r, "postID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), postKey{}, post)))
	})
}

func routedPost(ctx context.Context) *domain.Post {
	post, _ := ctx.Value(postKey{}).(*domain.Post)
	return post
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	views, err := s.views(r.Context(), viewer, []*domain.Post{routedPost(r.Context())})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views[0])
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	actor := identity.FromContext(r.Context())
	if !actor.Authenticated() {
		writeError(w, r, apperr.ErrUnauthenticated)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, r, apperr.InvalidInput("expected a multipart form", err))
		return
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["images"]
	}
	images := make([]posts.Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, apperr.InvalidInput("unreadable image", err))
			return
		}
		defer f.Close()
		images = append(images, posts.Image{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}

	post, err := s.Posts.Create(r.Context(), actor, posts.Input{
		Caption:    r.FormValue("caption"),
		Visibility: domain.Visibility(r.FormValue("visibility")),
	}, images)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PostView{Post: post})
}

func (s *Server) toggleWork(w http.ResponseWriter, r *http.Request) {
	actor := identity.FromContext(r.Context())
	state, err := s.Works.For(actor).Toggle(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
