// Package optimistic applies a local state change immediately and repairs it
// if the matching remote write fails.
package optimistic

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Mutation is one optimistic change. Local and Revert must not block.
type Mutation struct {
	Name   string
	Local  func()
	Remote func(ctx context.Context) error
	Revert func()
}

// Perform runs Local, then Remote. Any Remote failure, including a panic,
// runs Revert before the error is returned.
func Perform(ctx context.Context, m Mutation) (err error) {
	if m.Local != nil {
		m.Local()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic in remote write: %v", m.Name, r)
		}
		if err != nil && m.Revert != nil {
			log.Warn().Err(err).Str("mutation", m.Name).Msg("Remote write failed, reverting local state...")
			m.Revert()
		}
	}()

	if m.Remote == nil {
		return nil
	}
	return m.Remote(ctx)
}
