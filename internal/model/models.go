// Package model defines the data models for the reputation system.
package model

import "time"

// Account represents a member's reputation account within one guild.
// Accounts are created lazily on first read or write and are never deleted;
// an admin reset clamps points to zero instead of removing the row.
type Account struct {
	GuildID        string     `db:"guild_id"`
	UserID         string     `db:"user_id"`
	Points         int64      `db:"points"`
	LastReceivedAt *time.Time `db:"last_received_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Transfer represents one entry in the append-only reputation log.
// Entries are immutable once written; old entries are evicted FIFO once a
// guild exceeds its retention cap.
type Transfer struct {
	ID         int64     `db:"id"`
	GuildID    string    `db:"guild_id"`
	GiverID    string    `db:"giver_id"`
	ReceiverID string    `db:"receiver_id"`
	Reason     string    `db:"reason"`
	ChannelID  string    `db:"channel_id"`
	Type       string    `db:"type"`
	CreatedAt  time.Time `db:"created_at"`
}

// Transfer record types.
const (
	TransferTypeGive  = "give"  // Regular member-to-member point award
	TransferTypeReset = "reset" // Admin zeroed the target's points
)

// Cooldown restricts one giver from awarding the same receiver again
// before ExpiresAt. An expired cooldown is equivalent to no cooldown.
type Cooldown struct {
	GuildID    string    `db:"guild_id"`
	GiverID    string    `db:"giver_id"`
	ReceiverID string    `db:"receiver_id"`
	ExpiresAt  time.Time `db:"expires_at"`
}

// RoleReward maps a reputation threshold to a guild role. A member whose
// points reach Threshold is entitled to the role.
type RoleReward struct {
	GuildID   string    `db:"guild_id"`
	RoleID    string    `db:"role_id"`
	Threshold int64     `db:"threshold"`
	CreatedAt time.Time `db:"created_at"`
}

// SuspiciousPattern records a detected reciprocal-exchange pair.
// UserA and UserB are stored in normalized order (UserA < UserB) so the
// pair key is unordered.
type SuspiciousPattern struct {
	ID         int64      `db:"id"`
	GuildID    string     `db:"guild_id"`
	UserA      string     `db:"user_a"`
	UserB      string     `db:"user_b"`
	CountAToB  int64      `db:"count_a_to_b"`
	CountBToA  int64      `db:"count_b_to_a"`
	Reviewed   bool       `db:"reviewed"`
	LoggedAt   time.Time  `db:"logged_at"`
	ReviewedAt *time.Time `db:"reviewed_at"`
}

// PairKey returns the normalized unordered pair for two user IDs.
func PairKey(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// LeaderboardEntry is one row of a guild leaderboard.
type LeaderboardEntry struct {
	UserID string `db:"user_id"`
	Points int64  `db:"points"`
	Rank   int64  `db:"rank"`
}

// GuildStats aggregates reputation activity for one guild.
type GuildStats struct {
	RankedUsers    int64
	TotalPoints    int64
	AveragePoints  float64
	TransfersToday int64
}
