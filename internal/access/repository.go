package access

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinova/accessd/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for user-role
// assignments and permission overrides.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RolesForUser returns the roles assigned to the user.
func (r *Repository) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.is_system
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// OverridesForUser returns the user's permission overrides ordered by code.
func (r *Repository) OverridesForUser(ctx context.Context, userID int64) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.code, o.effect
		FROM user_permission_overrides o
		JOIN permissions p ON p.id = o.permission_id
		WHERE o.user_id = $1
		ORDER BY p.code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOverrides(rows)
}

// Snapshot reads the user's role-derived permission codes and overrides in
// a single transaction so concurrent replaces are never observed half-applied.
func (r *Repository) Snapshot(ctx context.Context, userID int64) (roleCodes []string, overrides []Override, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT DISTINCT p.code
			FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ur.user_id = $1`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var code string
			if err := rows.Scan(&code); err != nil {
				return err
			}
			roleCodes = append(roleCodes, code)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		orows, err := tx.Query(ctx, `
			SELECT p.code, o.effect
			FROM user_permission_overrides o
			JOIN permissions p ON p.id = o.permission_id
			WHERE o.user_id = $1`, userID)
		if err != nil {
			return err
		}
		defer orows.Close()
		overrides, err = scanOverrides(orows)
		return err
	})
	return roleCodes, overrides, err
}

// ReplaceRoles atomically installs the new role set for the user and
// returns the prior set. Fails with ErrUnknownRole when any id is missing.
func (r *Repository) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) (prior []int64, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := db.AcquireKeyLock(ctx, tx, db.LockClassUser, userID); err != nil {
			return err
		}
		if err := verifyRoleIDs(ctx, tx, roleIDs); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			prior = append(prior, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return replaceRolesTx(ctx, tx, userID, roleIDs)
	})
	return prior, err
}

// ReplaceOverrides atomically installs the new override set for the user,
// returning the prior set. Codes are pre-resolved to permission ids by the
// service, so the only failures left are storage failures.
func (r *Repository) ReplaceOverrides(ctx context.Context, userID int64, overrides []resolvedOverride) (prior []Override, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := db.AcquireKeyLock(ctx, tx, db.LockClassUser, userID); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT p.code, o.effect
			FROM user_permission_overrides o
			JOIN permissions p ON p.id = o.permission_id
			WHERE o.user_id = $1`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		prior, err = scanOverrides(rows)
		if err != nil {
			return err
		}
		return replaceOverridesTx(ctx, tx, userID, overrides)
	})
	return prior, err
}

// CopyAccess replaces the target's roles and overrides with the source's
// in one transaction. The target's prior access is discarded, not merged.
func (r *Repository) CopyAccess(ctx context.Context, targetID, sourceID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := db.AcquireKeyLock(ctx, tx, db.LockClassUser, targetID); err != nil {
			return err
		}

		var roleIDs []int64
		rows, err := tx.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, sourceID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			roleIDs = append(roleIDs, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		var overrides []resolvedOverride
		orows, err := tx.Query(ctx, `SELECT permission_id, effect FROM user_permission_overrides WHERE user_id = $1`, sourceID)
		if err != nil {
			return err
		}
		defer orows.Close()
		for orows.Next() {
			var ov resolvedOverride
			if err := orows.Scan(&ov.PermissionID, &ov.Effect); err != nil {
				return err
			}
			overrides = append(overrides, ov)
		}
		if err := orows.Err(); err != nil {
			return err
		}

		if err := replaceRolesTx(ctx, tx, targetID, roleIDs); err != nil {
			return err
		}
		return replaceOverridesTx(ctx, tx, targetID, overrides)
	})
}

// resolvedOverride pairs a catalog permission id with an effect.
type resolvedOverride struct {
	PermissionID int64
	Effect       Effect
}

func verifyRoleIDs(ctx context.Context, tx pgx.Tx, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE id = ANY($1)`, roleIDs).Scan(&count); err != nil {
		return err
	}
	if count != len(roleIDs) {
		return ErrUnknownRole
	}
	return nil
}

func replaceRolesTx(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID); err != nil {
			return err
		}
	}
	return nil
}

func replaceOverridesTx(ctx context.Context, tx pgx.Tx, userID int64, overrides []resolvedOverride) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_permission_overrides WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, ov := range overrides {
		if _, err := tx.Exec(ctx, `INSERT INTO user_permission_overrides (user_id, permission_id, effect) VALUES ($1, $2, $3)`, userID, ov.PermissionID, string(ov.Effect)); err != nil {
			return err
		}
	}
	return nil
}

func scanOverrides(rows pgx.Rows) ([]Override, error) {
	var overrides []Override
	for rows.Next() {
		var code, effect string
		if err := rows.Scan(&code, &effect); err != nil {
			return nil, err
		}
		overrides = append(overrides, Override{PermissionCode: code, Effect: Effect(effect)})
	}
	return overrides, rows.Err()
}
