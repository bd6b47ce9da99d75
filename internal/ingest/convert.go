package ingest

import (
	"time"

	"github.com/franklinacm/synapse/internal/activity"
	"github.com/franklinacm/synapse/internal/source"
)

// Profile converts a source member into the profile the store upserts.
func Profile(m source.Member) activity.MemberProfile {
	p := activity.MemberProfile{
		ExtID:        m.User.ID,
		Name:         m.User.Name,
		GlobalName:   m.User.GlobalName,
		Nickname:     m.Nickname,
		AvatarHash:   m.User.AvatarHash,
		IsBot:        m.User.Bot,
		Pending:      m.Pending,
		JoinedAt:     timeOrNil(m.JoinedAt),
		PremiumSince: m.PremiumSince,
	}
	for _, r := range m.Roles {
		p.Roles = append(p.Roles, activity.Role{ExtID: r.ID, Name: r.Name})
	}
	return p
}

// RoleIDs returns the external ids of m's roles.
func RoleIDs(m source.Member) []int64 {
	ids := make([]int64, 0, len(m.Roles))
	for _, r := range m.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

func categoryFrom(c source.Category) activity.Category {
	return activity.Category{ExtID: c.ID, Name: c.Name, CreatedAt: timeOrNil(c.CreatedAt)}
}

func channelFrom(ch source.Channel) (activity.Channel, *activity.Category) {
	out := activity.Channel{
		ExtID:     ch.ID,
		Name:      ch.Name,
		Type:      ch.Type,
		CreatedAt: timeOrNil(ch.CreatedAt),
	}
	if ch.Category == nil {
		return out, nil
	}
	cat := categoryFrom(*ch.Category)
	return out, &cat
}

func forumTagFrom(t source.ForumTag) activity.ForumTag {
	return activity.ForumTag{
		ExtID:       t.ID,
		Name:        t.Name,
		EmojiName:   t.EmojiName,
		EmojiExtID:  t.EmojiID,
		IsModerated: t.Moderated,
	}
}

func attachmentsFrom(atts []source.Attachment) []activity.Attachment {
	out := make([]activity.Attachment, 0, len(atts))
	for _, a := range atts {
		out = append(out, activity.Attachment{
			ExtID:        a.ID,
			Filename:     a.Filename,
			Description:  a.Description,
			ContentType:  a.ContentType,
			Size:         a.Size,
			Width:        a.Width,
			Height:       a.Height,
			DurationSecs: a.DurationSecs,
		})
	}
	return out
}

func reactionsFrom(rs []source.Reaction) []activity.Reaction {
	out := make([]activity.Reaction, 0, len(rs))
	for _, r := range rs {
		out = append(out, activity.Reaction{
			EmojiName:  r.EmojiName,
			EmojiExtID: r.EmojiID,
			Count:      r.Count,
			BurstCount: r.BurstCount,
		})
	}
	return out
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
