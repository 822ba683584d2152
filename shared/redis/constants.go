// shared/redis/constants.go
package redis

const (
	// Hash tags keep every key of one logical record in the same cluster slot.
	SessionKeyPrefix         = "session:{%s}:"                    // Key for a signed-in principal: session:{token}
	LeaderboardGenerationKey = "leaderboard:{global}:generation"  // Bumped on every invalidation
	LeaderboardSnapshotKey   = "leaderboard:{global}:snapshot:%d" // Cached ranked snapshot per generation
	RegistryHashPrefix       = "services:"                        // Hash of live instances per service type: services:<serviceType>
)
