package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinova/accessd/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, description, is_system, created_at, updated_at`

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role with its permission codes.
func (r *Repository) GetRole(ctx context.Context, id int64) (RoleWithPermissions, error) {
	var result RoleWithPermissions
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return result, ErrNotFound
		}
		return result, err
	}
	result.Role = role

	rows, err := r.pool.Query(ctx, `
		SELECT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code`, id)
	if err != nil {
		return result, err
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return result, err
		}
		result.Permissions = append(result.Permissions, code)
	}
	return result, rows.Err()
}

// CreateRole inserts a new custom role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, is_system)
		VALUES ($1, $2, FALSE)
		RETURNING `+roleColumns, name, description)
	role, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicateName
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates name and/or description. A nil field is left as is.
// Renaming a system role fails with ErrSystemRoleImmutable.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := db.AcquireKeyLock(ctx, tx, db.LockClassRole, id); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
		current, err := scanRole(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		newName := current.Name
		if name != nil && *name != current.Name {
			if current.IsSystem {
				return ErrSystemRoleImmutable
			}
			newName = *name
		}
		newDescription := current.Description
		if description != nil {
			newDescription = *description
		}
		row = tx.QueryRow(ctx, `
			UPDATE roles SET name = $2, description = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+roleColumns, id, newName, newDescription)
		updated, err = scanRole(row)
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// DeleteRole removes a custom role and cascades its user assignments.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := db.AcquireKeyLock(ctx, tx, db.LockClassRole, id); err != nil {
			return err
		}
		var isSystem bool
		if err := tx.QueryRow(ctx, `SELECT is_system FROM roles WHERE id = $1`, id).Scan(&isSystem); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if isSystem {
			return ErrSystemRoleImmutable
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		return err
	})
}

// ReplacePermissions atomically installs the new permission set for the
// role. The codes were already resolved to catalog ids by the service.
func (r *Repository) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := db.AcquireKeyLock(ctx, tx, db.LockClassRole, roleID); err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, permID); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
