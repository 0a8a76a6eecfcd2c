// Tracks sanctions already applied, so that crossing a threshold mutes or bans an author at most once.
package sanctionstore

import (
	"context"
	"time"
)

type Kind string

const (
	KindMute Kind = "mute"
	KindBan  Kind = "ban"
)

type Store interface {
	// Records a new sanction for the author. Returns false, without changing anything, if the author is banned or (for mutes) still muted.
	//
	// ttl is the mute duration; bans ignore it and never expire.
	Claim(ctx context.Context, groupID, authorID string, kind Kind, ttl time.Duration) (bool, error)
	// Harshest sanction currently in effect, or an empty string.
	Active(ctx context.Context, groupID, authorID string) (Kind, error)
	// Drops a claimed sanction of the given kind, eg when it could not be applied after all.
	Release(ctx context.Context, groupID, authorID string, kind Kind) error
}

func sanctionKey(groupID, authorID string) string {
	return groupID + "/" + authorID
}
