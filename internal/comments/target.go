package comments

import "github.com/UkralStul/crewfeed-service/internal/domain"

// ReplyTarget maps the entry a user is answering onto where the reply is
// stored and who it is addressed to. Threads are two levels deep: a reply to
// a reply is filed under the same thread root and addressed to that reply's
// author.
func ReplyTarget(entry domain.ThreadEntry) (rootID string, addressee domain.ActorSnapshot) {
	return entry.RootID(), entry.EntryAuthor()
}
