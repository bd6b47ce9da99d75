package activity

import "time"

// Member is a guild member as stored.
type Member struct {
	ID           int64
	ExtID        int64
	Name         string
	GlobalName   string
	Nickname     string
	AvatarHash   string
	IsBot        bool
	IsActive     bool
	Pending      bool
	JoinedAt     *time.Time
	PremiumSince *time.Time
	PCurrency    int64
	SCurrency    int64
}

// IsBoosting reports whether the member currently boosts the guild.
func (m *Member) IsBoosting() bool {
	return m.PremiumSince != nil
}

// MemberProfile is the full set of observed profile fields used by a full upsert.
type MemberProfile struct {
	ExtID        int64
	Name         string
	GlobalName   string
	Nickname     string
	AvatarHash   string
	IsBot        bool
	Pending      bool
	JoinedAt     *time.Time
	PremiumSince *time.Time
	Roles        []Role
}

// Role is a guild role keyed by external id.
type Role struct {
	ID       int64
	ExtID    int64
	Name     string
	IsActive bool
}

// RoleChange is the detail record of a MEMBER_ROLE_CHANGE event.
// Added and Removed hold role external ids.
type RoleChange struct {
	ID      int64
	EventID int64
	Added   []int64
	Removed []int64
}

// GuildMetadata is the single stored row describing the guild itself.
type GuildMetadata struct {
	ExtID     int64
	Name      string
	CreatedAt *time.Time
}

// Statistics is the single stored row of bookkeeping counters.
type Statistics struct {
	LastReconciledAt   *time.Time
	ReconcileCount     int64
	MembersReconciled  int64
	MessagesBackfilled int64
}
