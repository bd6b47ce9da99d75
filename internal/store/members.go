package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

const memberColumns = `id, ext_id, name, global_name, nickname, avatar_hash, is_bot, is_active,
	pending, joined_at, premium_since, p_currency, s_currency`

// UpsertMemberIdentity records a member seen only through an author or voice
// payload. A new row starts active; an existing row keeps its active flag so
// a historical message from a departed member does not reactivate them.
func (s *Store) UpsertMemberIdentity(ctx context.Context, extID int64, name string, isBot bool) (int64, error) {
	return upsertMemberIdentity(ctx, s.db, extID, name, isBot)
}

func upsertMemberIdentity(ctx context.Context, q querier, extID int64, name string, isBot bool) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO members (ext_id, name, is_bot, is_active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(ext_id) DO UPDATE SET
			name = excluded.name,
			is_bot = excluded.is_bot
		RETURNING id
	`, extID, name, boolToInt(isBot)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert member identity %d: %w", extID, err)
	}
	return id, nil
}

// UpsertMemberProfile writes every profile field and marks the member active.
// Currency counters are never touched. Roles in the profile are ignored; use
// ReplaceMemberRoles.
func (s *Store) UpsertMemberProfile(ctx context.Context, p activity.MemberProfile) (int64, error) {
	return upsertMemberProfile(ctx, s.db, p)
}

func upsertMemberProfile(ctx context.Context, q querier, p activity.MemberProfile) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO members
		(ext_id, name, global_name, nickname, avatar_hash, is_bot, is_active, pending, joined_at, premium_since)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(ext_id) DO UPDATE SET
			name = excluded.name,
			global_name = excluded.global_name,
			nickname = excluded.nickname,
			avatar_hash = excluded.avatar_hash,
			is_bot = excluded.is_bot,
			is_active = 1,
			pending = excluded.pending,
			joined_at = excluded.joined_at,
			premium_since = excluded.premium_since
		RETURNING id
	`,
		p.ExtID,
		p.Name,
		nullString(p.GlobalName),
		nullString(p.Nickname),
		nullString(p.AvatarHash),
		boolToInt(p.IsBot),
		boolToInt(p.Pending),
		nullTime(p.JoinedAt),
		nullTime(p.PremiumSince),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert member profile %d: %w", p.ExtID, err)
	}
	return id, nil
}

// Member reads a member by internal id. Returns sql.ErrNoRows (wrapped) if absent.
func (s *Store) Member(ctx context.Context, id int64) (activity.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err != nil {
		return activity.Member{}, fmt.Errorf("read member %d: %w", id, err)
	}
	return m, nil
}

// MemberByExtID reads a member by external id.
func (s *Store) MemberByExtID(ctx context.Context, extID int64) (activity.Member, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE ext_id = ?`, extID)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Member{}, false, nil
	}
	if err != nil {
		return activity.Member{}, false, fmt.Errorf("read member ext %d: %w", extID, err)
	}
	return m, true, nil
}

// ActiveMemberExtIDs returns the external ids of every active member.
func (s *Store) ActiveMemberExtIDs(ctx context.Context) ([]int64, error) {
	return queryInt64s(ctx, s.db, "active member ids",
		`SELECT ext_id FROM members WHERE is_active = 1 ORDER BY ext_id`)
}

// DeactivateAllMembers marks every member inactive.
func (s *Store) DeactivateAllMembers(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE members SET is_active = 0`); err != nil {
		return fmt.Errorf("deactivate all members: %w", err)
	}
	return nil
}

// ReplaceActiveMembers makes the given profiles exactly the active member set:
// every member is deactivated, then each profile is upserted (reactivating
// it) and its role list replaced. Runs as one transaction, so readers never
// observe the intermediate all-inactive state.
func (s *Store) ReplaceActiveMembers(ctx context.Context, profiles []activity.MemberProfile) error {
	return s.withTx(ctx, "replace active members", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE members SET is_active = 0`); err != nil {
			return fmt.Errorf("deactivate all: %w", err)
		}
		for _, p := range profiles {
			id, err := upsertMemberProfile(ctx, tx, p)
			if err != nil {
				return err
			}
			if err := replaceMemberRoles(ctx, tx, id, p.Roles); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddCurrency atomically adds signed deltas to an active member's counters.
// Returns false when the member is inactive or unknown.
func (s *Store) AddCurrency(ctx context.Context, memberID, pDelta, sDelta int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET p_currency = p_currency + ?, s_currency = s_currency + ?
		WHERE id = ? AND is_active = 1
	`, pDelta, sDelta, memberID)
	if err != nil {
		return false, fmt.Errorf("add currency to member %d: %w", memberID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add currency to member %d: rows affected: %w", memberID, err)
	}
	return n > 0, nil
}

// MemberJoinedAt returns when the member joined the guild, if known.
func (s *Store) MemberJoinedAt(ctx context.Context, memberID int64) (*time.Time, error) {
	var joined sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT joined_at FROM members WHERE id = ?`, memberID).Scan(&joined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read joined_at for member %d: %w", memberID, err)
	}
	t, err := timePtr(joined)
	if err != nil {
		return nil, fmt.Errorf("read joined_at for member %d: %w", memberID, err)
	}
	return t, nil
}

// MemberRoleExtIDs returns the external ids of the member's stored roles.
func (s *Store) MemberRoleExtIDs(ctx context.Context, memberID int64) ([]int64, error) {
	return queryInt64s(ctx, s.db, "member role ids", `
		SELECT r.ext_id FROM member_roles mr
		JOIN roles r ON r.id = mr.role_id
		WHERE mr.member_id = ?
		ORDER BY r.ext_id
	`, memberID)
}

// ReplaceMemberRoles replaces the member's role junction rows with roles,
// upserting each role first.
func (s *Store) ReplaceMemberRoles(ctx context.Context, memberID int64, roles []activity.Role) error {
	return s.withTx(ctx, "replace member roles", func(tx *sql.Tx) error {
		return replaceMemberRoles(ctx, tx, memberID, roles)
	})
}

func replaceMemberRoles(ctx context.Context, q querier, memberID int64, roles []activity.Role) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM member_roles WHERE member_id = ?`, memberID); err != nil {
		return fmt.Errorf("clear roles of member %d: %w", memberID, err)
	}
	for _, r := range roles {
		roleID, err := upsertRole(ctx, q, r.ExtID, r.Name)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO member_roles (member_id, role_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, memberID, roleID)
		if err != nil {
			return fmt.Errorf("link member %d to role %d: %w", memberID, r.ExtID, err)
		}
	}
	return nil
}

// UpsertRole inserts or renames a role and marks it active.
func (s *Store) UpsertRole(ctx context.Context, extID int64, name string) (int64, error) {
	return upsertRole(ctx, s.db, extID, name)
}

func upsertRole(ctx context.Context, q querier, extID int64, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO roles (ext_id, name, is_active) VALUES (?, ?, 1)
		ON CONFLICT(ext_id) DO UPDATE SET name = excluded.name, is_active = 1
		RETURNING id
	`, extID, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert role %d: %w", extID, err)
	}
	return id, nil
}

// ActiveRoleExtIDs returns the external ids of every active role.
func (s *Store) ActiveRoleExtIDs(ctx context.Context) ([]int64, error) {
	return queryInt64s(ctx, s.db, "active role ids",
		`SELECT ext_id FROM roles WHERE is_active = 1 ORDER BY ext_id`)
}

// DeactivateRoles marks the given roles inactive.
func (s *Store) DeactivateRoles(ctx context.Context, extIDs []int64) (int64, error) {
	return deactivateByExtID(ctx, s.db, "roles", extIDs)
}

func scanMember(row *sql.Row) (activity.Member, error) {
	var (
		m                            activity.Member
		globalName, nickname, avatar sql.NullString
		joinedAt, premiumSince       sql.NullString
		isBot, isActive, pending     int
	)
	err := row.Scan(&m.ID, &m.ExtID, &m.Name, &globalName, &nickname, &avatar,
		&isBot, &isActive, &pending, &joinedAt, &premiumSince, &m.PCurrency, &m.SCurrency)
	if err != nil {
		return activity.Member{}, err
	}
	m.GlobalName = globalName.String
	m.Nickname = nickname.String
	m.AvatarHash = avatar.String
	m.IsBot = isBot == 1
	m.IsActive = isActive == 1
	m.Pending = pending == 1
	if m.JoinedAt, err = timePtr(joinedAt); err != nil {
		return activity.Member{}, err
	}
	if m.PremiumSince, err = timePtr(premiumSince); err != nil {
		return activity.Member{}, err
	}
	return m, nil
}

// deactivateByExtID sets is_active = 0 on rows of table whose ext_id is in extIDs.
// table is always a package constant.
func deactivateByExtID(ctx context.Context, q querier, table string, extIDs []int64) (int64, error) {
	if len(extIDs) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`UPDATE %s SET is_active = 0 WHERE ext_id IN (%s)`, table, placeholders(len(extIDs)))
	res, err := q.ExecContext(ctx, query, int64Args(extIDs)...)
	if err != nil {
		return 0, fmt.Errorf("deactivate %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate %s: rows affected: %w", table, err)
	}
	return n, nil
}

func queryInt64s(ctx context.Context, q querier, op, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}
