package domain

import "time"

// CounterKind names a denormalized counter field.
type CounterKind string

const (
	CounterPostWorks        CounterKind = "post.worksCount"
	CounterPostComments     CounterKind = "post.commentsCount"
	CounterCommentReplies   CounterKind = "comment.replyCount"
	CounterProfileFollowing CounterKind = "profile.followingCount"
	CounterProfileFollowers CounterKind = "profile.followersCount"
)

// CounterRef addresses one denormalized counter. PostID is set for post and
// comment counters, CommentID for reply counters, UserID for profile counters.
type CounterRef struct {
	Kind      CounterKind
	PostID    string
	CommentID string
	UserID    string
}

func PostWorks(postID string) CounterRef {
	return CounterRef{Kind: CounterPostWorks, PostID: postID}
}

func PostComments(postID string) CounterRef {
	return CounterRef{Kind: CounterPostComments, PostID: postID}
}

func CommentReplies(postID, commentID string) CounterRef {
	return CounterRef{Kind: CounterCommentReplies, PostID: postID, CommentID: commentID}
}

func ProfileFollowing(userID string) CounterRef {
	return CounterRef{Kind: CounterProfileFollowing, UserID: userID}
}

func ProfileFollowers(userID string) CounterRef {
	return CounterRef{Kind: CounterProfileFollowers, UserID: userID}
}

// Timestamp normalizes t to the precision every backend can store.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
