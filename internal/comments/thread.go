package comments

import (
	"context"
	"errors"
	"sync"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/optimistic"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/samber/lo"
)

// Phase is the paginator state of a thread or of one reply list.
type Phase string

const (
	PhaseCollapsed   Phase = "collapsed"
	PhaseLoading     Phase = "loading"
	PhaseExpanded    Phase = "expanded"
	PhaseLoadingMore Phase = "loading-more"
)

var (
	ErrBusy        = apperr.New(apperr.CodeConflict, "thread is already loading", nil)
	ErrNotExpanded = apperr.New(apperr.CodeConflict, "thread is not expanded", nil)
)

// pager walks one ordered, cursor-paginated list:
//
//	collapsed -> loading -> expanded(1) -> loading-more -> expanded(n+1)
//	expanded(*) -> collapsed
//
// A load that finishes after a collapse is discarded.
type pager[T any] struct {
	fetch    func(ctx context.Context, args storage.PaginationArgs) (storage.Page[T], error)
	pageSize int

	mu      sync.Mutex
	phase   Phase
	pages   int
	items   []T
	cursor  *string
	hasMore bool
}

func newPager[T any](pageSize int, fetch func(context.Context, storage.PaginationArgs) (storage.Page[T], error)) *pager[T] {
	return &pager[T]{fetch: fetch, pageSize: pageSize, phase: PhaseCollapsed}
}

func (p *pager[T]) expand(ctx context.Context) error {
	p.mu.Lock()
	switch p.phase {
	case PhaseExpanded:
		p.mu.Unlock()
		return nil
	case PhaseLoading, PhaseLoadingMore:
		p.mu.Unlock()
		return ErrBusy
	}
	p.phase = PhaseLoading
	p.mu.Unlock()

	page, err := p.fetch(ctx, storage.PaginationArgs{Limit: p.pageSize})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != PhaseLoading {
		return nil
	}
	if err != nil {
		p.phase = PhaseCollapsed
		return err
	}
	p.items = page.Items
	p.cursor = page.Cursor
	p.hasMore = page.HasMore
	p.pages = 1
	p.phase = PhaseExpanded
	return nil
}

func (p *pager[T]) more(ctx context.Context) error {
	p.mu.Lock()
	switch p.phase {
	case PhaseCollapsed:
		p.mu.Unlock()
		return ErrNotExpanded
	case PhaseLoading, PhaseLoadingMore:
		p.mu.Unlock()
		return ErrBusy
	}
	if !p.hasMore {
		p.mu.Unlock()
		return nil
	}
	p.phase = PhaseLoadingMore
	args := storage.PaginationArgs{Limit: p.pageSize, Cursor: p.cursor}
	p.mu.Unlock()

	page, err := p.fetch(ctx, args)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != PhaseLoadingMore {
		return nil
	}
	p.phase = PhaseExpanded
	if err != nil {
		return err
	}
	p.items = append(p.items, page.Items...)
	if page.Cursor != nil {
		p.cursor = page.Cursor
	}
	p.hasMore = page.HasMore
	p.pages++
	return nil
}

func (p *pager[T]) collapse() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = PhaseCollapsed
	p.items = nil
	p.cursor = nil
	p.hasMore = false
	p.pages = 0
}

// View is what a client renders for a post's comment section.
type View struct {
	Phase    Phase             `json:"phase"`
	Pages    int               `json:"pages"`
	Comments []*domain.Comment `json:"comments"`
	HasMore  bool              `json:"hasMore"`
	Cursor   *string           `json:"cursor,omitempty"`
	// PinnedID is the deep-linked comment fetched by point read and shown
	// first, out of remote order.
	PinnedID      string `json:"pinnedId,omitempty"`
	FocusNotFound bool   `json:"focusNotFound,omitempty"`
}

// Thread is the paginated comment section of one post.
type Thread struct {
	svc           *Service
	postID        string
	replyPageSize int
	top           *pager[*domain.Comment]

	mu           sync.Mutex
	pinned       *domain.Comment
	focusMissing bool
	replies      map[string]*Replies
}

func (s *Service) NewThread(postID string, pageSize, replyPageSize int) *Thread {
	return &Thread{
		svc:           s,
		postID:        postID,
		replyPageSize: replyPageSize,
		top: newPager(pageSize, func(ctx context.Context, args storage.PaginationArgs) (storage.Page[*domain.Comment], error) {
			return s.LoadTopLevel(ctx, postID, args)
		}),
		replies: make(map[string]*Replies),
	}
}

// Expand loads the first page. When focusID is set and that comment is not
// on the first page it is point-read and pinned to the top; a missing
// focus is reported in the view, not as an error.
func (t *Thread) Expand(ctx context.Context, focusID string) (View, error) {
	if err := t.top.expand(ctx); err != nil {
		return t.View(), err
	}
	if focusID == "" {
		return t.View(), nil
	}

	t.top.mu.Lock()
	_, onPage := lo.Find(t.top.items, func(c *domain.Comment) bool { return c.ID == focusID })
	t.top.mu.Unlock()
	if onPage {
		return t.View(), nil
	}

	focus, err := t.svc.GetComment(ctx, t.postID, focusID)
	t.mu.Lock()
	switch {
	case err == nil:
		t.pinned = focus
		t.focusMissing = false
	case errors.Is(err, storage.ErrNotFound):
		t.focusMissing = true
		err = nil
	}
	t.mu.Unlock()
	return t.View(), err
}

func (t *Thread) LoadMore(ctx context.Context) (View, error) {
	err := t.top.more(ctx)
	return t.View(), err
}

func (t *Thread) Collapse() View {
	t.top.collapse()
	t.mu.Lock()
	t.pinned = nil
	t.focusMissing = false
	for _, r := range t.replies {
		r.Collapse()
	}
	t.mu.Unlock()
	return t.View()
}

// View renders the current state. The pinned comment is shown once even
// when a later page reaches it in remote order.
func (t *Thread) View() View {
	t.mu.Lock()
	pinned, missing := t.pinned, t.focusMissing
	t.mu.Unlock()

	t.top.mu.Lock()
	defer t.top.mu.Unlock()
	v := View{
		Phase:         t.top.phase,
		Pages:         t.top.pages,
		HasMore:       t.top.hasMore,
		Cursor:        t.top.cursor,
		FocusNotFound: missing,
		Comments:      make([]*domain.Comment, 0, len(t.top.items)+1),
	}
	if pinned != nil {
		v.PinnedID = pinned.ID
		c := *pinned
		v.Comments = append(v.Comments, &c)
	}
	for _, item := range t.top.items {
		if pinned != nil && item.ID == pinned.ID {
			continue
		}
		c := *item
		v.Comments = append(v.Comments, &c)
	}
	return v
}

// Replies returns the reply list of the thread rooted at rootID.
func (t *Thread) Replies(rootID string) *Replies {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.replies[rootID]
	if !ok {
		postID, svc := t.postID, t.svc
		r = &Replies{p: newPager(t.replyPageSize, func(ctx context.Context, args storage.PaginationArgs) (storage.Page[*domain.Reply], error) {
			return svc.LoadReplies(ctx, postID, rootID, args)
		})}
		t.replies[rootID] = r
	}
	return r
}

// AddComment writes a comment and shows it at the top of an expanded
// thread.
func (t *Thread) AddComment(ctx context.Context, actor identity.Identity, text string) (*domain.Comment, error) {
	comment, err := t.svc.AddComment(ctx, actor, t.postID, text)
	if err != nil {
		return nil, err
	}
	t.top.mu.Lock()
	if t.top.phase == PhaseExpanded {
		c := *comment
		t.top.items = append([]*domain.Comment{&c}, t.top.items...)
	}
	t.top.mu.Unlock()
	return comment, nil
}

// AddReply writes a reply with an optimistic replyCount bump on the root
// comment, reverted if the write fails. A fully loaded reply list gets the
// new reply appended.
func (t *Thread) AddReply(ctx context.Context, actor identity.Identity, target domain.ThreadEntry, text string) (*domain.Reply, error) {
	rootID, _ := ReplyTarget(target)
	var reply *domain.Reply
	err := optimistic.Perform(ctx, optimistic.Mutation{
		Name:  "comments.reply",
		Local: func() { t.adjustReplyCount(rootID, 1) },
		Remote: func(ctx context.Context) error {
			var err error
			reply, err = t.svc.AddReply(ctx, actor, target, text)
			return err
		},
		Revert: func() { t.adjustReplyCount(rootID, -1) },
	})
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	r, ok := t.replies[rootID]
	t.mu.Unlock()
	if ok {
		r.appendIfComplete(reply)
	}
	return reply, nil
}

func (t *Thread) adjustReplyCount(rootID string, delta int64) {
	bump := func(c *domain.Comment) {
		if c != nil && c.ID == rootID {
			c.ReplyCount = max(c.ReplyCount+delta, 0)
		}
	}
	t.top.mu.Lock()
	for _, c := range t.top.items {
		bump(c)
	}
	t.top.mu.Unlock()

	t.mu.Lock()
	bump(t.pinned)
	t.mu.Unlock()
}

// ReplyView is what a client renders for one reply list.
type ReplyView struct {
	Phase   Phase           `json:"phase"`
	Pages   int             `json:"pages"`
	Replies []*domain.Reply `json:"replies"`
	HasMore bool            `json:"hasMore"`
	Cursor  *string         `json:"cursor,omitempty"`
}

// Replies is the oldest-first reply list of one thread root.
type Replies struct {
	p *pager[*domain.Reply]
}

func (r *Replies) Expand(ctx context.Context) (ReplyView, error) {
	err := r.p.expand(ctx)
	return r.View(), err
}

func (r *Replies) LoadMore(ctx context.Context) (ReplyView, error) {
	err := r.p.more(ctx)
	return r.View(), err
}

func (r *Replies) Collapse() ReplyView {
	r.p.collapse()
	return r.View()
}

func (r *Replies) View() ReplyView {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	return ReplyView{
		Phase:   r.p.phase,
		Pages:   r.p.pages,
		Replies: append([]*domain.Reply{}, r.p.items...),
		HasMore: r.p.hasMore,
		Cursor:  r.p.cursor,
	}
}

// appendIfComplete adds a new reply to a list that has no further pages.
// Lists with pages left pick it up through the cursor.
func (r *Replies) appendIfComplete(reply *domain.Reply) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	if r.p.phase != PhaseExpanded || r.p.hasMore {
		return
	}
	r.p.items = append(r.p.items, reply)
	c := storage.EncodeCursor(reply.CreatedAt, reply.ID)
	r.p.cursor = &c
}
