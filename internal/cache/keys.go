package cache

import (
	"github.com/google/uuid"
)

// PlayerDataKey builds the "<player>:<dataType>" key used by the player data cache.
func PlayerDataKey(player uuid.UUID, dataType string) string {
	return player.String() + ":" + dataType
}
