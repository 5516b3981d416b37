package reconcile

import (
	"context"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const scanPage = 100

// Reconciler recomputes the denormalized post and comment counters from the
// records they count.
type Reconciler struct {
	store storage.Storage
}

func New(store storage.Storage) *Reconciler {
	return &Reconciler{store: store}
}

// Post repairs worksCount, commentsCount and every replyCount of one post.
// It returns how many counters were rewritten.
func (r *Reconciler) Post(ctx context.Context, postID string) (int, error) {
	post, err := r.store.GetPostByID(ctx, postID)
	if err != nil {
		return 0, err
	}

	var ops []storage.Op
	works, err := r.store.CountWorks(ctx, postID)
	if err != nil {
		return 0, err
	}
	if works != post.WorksCount {
		ops = append(ops, storage.SetCounter{Counter: domain.PostWorks(postID), Value: works})
	}
	comments, err := r.store.CountComments(ctx, postID)
	if err != nil {
		return 0, err
	}
	if comments != post.CommentsCount {
		ops = append(ops, storage.SetCounter{Counter: domain.PostComments(postID), Value: comments})
	}

	args := storage.PaginationArgs{Limit: scanPage}
	for {
		page, err := r.store.GetCommentsByPostID(ctx, postID, args)
		if err != nil {
			return 0, err
		}
		for _, c := range page {
			replies, err := r.store.CountReplies(ctx, postID, c.ID)
			if err != nil {
				return 0, err
			}
			if replies != c.ReplyCount {
				ops = append(ops, storage.SetCounter{Counter: domain.CommentReplies(postID, c.ID), Value: replies})
			}
		}
		if len(page) < scanPage {
			break
		}
		cursor := storage.EncodeCursor(page[len(page)-1].CreatedAt, page[len(page)-1].ID)
		args.Cursor = &cursor
	}

	if len(ops) == 0 {
		return 0, nil
	}
	if err := r.store.Commit(ctx, ops...); err != nil {
		return 0, err
	}
	log.Info().Str("post", postID).Int("counters", len(ops)).Msg("Reconciled post counters.")
	return len(ops), nil
}

// Sweep reconciles every post. A post that fails is logged and skipped.
func (r *Reconciler) Sweep(ctx context.Context) (fixed int, err error) {
	start := time.Now()
	for offset := 0; ; offset += scanPage {
		posts, err := r.store.GetPosts(ctx, scanPage, offset)
		if err != nil {
			return fixed, err
		}
		for _, p := range posts {
			n, err := r.Post(ctx, p.ID)
			if err != nil {
				log.Warn().Err(err).Str("post", p.ID).Msg("Unable to reconcile post counters")
				continue
			}
			fixed += n
		}
		if len(posts) < scanPage {
			break
		}
	}
	log.Info().Int("counters", fixed).Dur("took", time.Since(start)).Msg("Counter sweep finished.")
	return fixed, nil
}

// Schedule runs Sweep on expr (cron syntax or "@every 1h"). The caller
// stops the returned scheduler.
func (r *Reconciler) Schedule(expr string) (*cron.Cron, error) {
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	if _, err := quartz.AddFunc(expr, func() {
		if _, err := r.Sweep(context.Background()); err != nil {
			log.Error().Err(err).Msg("An error occurred when sweeping counters.")
		}
	}); err != nil {
		return nil, err
	}
	quartz.Start()
	return quartz, nil
}
