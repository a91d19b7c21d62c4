package sqlite

import (
	"context"
	"fmt"

	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/repository"
)

// roleRepository implements repository.RoleRepository for SQLite.
type roleRepository struct {
	db *DB
}

// NewRoleRepository creates a new SQLite role repository.
func NewRoleRepository(db *DB) repository.RoleRepository {
	return &roleRepository{db: db}
}

// GetByID retrieves a role by ID.
func (r *roleRepository) GetByID(ctx context.Context, id int64) (*domain.Role, error) {
	return r.getRole(ctx, `SELECT id, name, description FROM roles WHERE id = ?`, id)
}

// GetByName retrieves a role by its unique name.
func (r *roleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getRole(ctx, `SELECT id, name, description FROM roles WHERE name = ?`, name)
}

func (r *roleRepository) getRole(ctx context.Context, query string, arg any) (*domain.Role, error) {
	role := &domain.Role{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&role.ID, &role.Name, &role.Description)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// List returns all roles.
func (r *roleRepository) List(ctx context.Context) ([]*domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*domain.Role
	for rows.Next() {
		role := &domain.Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}

// GetPermission retrieves the permission record owned by a role.
func (r *roleRepository) GetPermission(ctx context.Context, roleID int64) (*domain.Permission, error) {
	query := `
		SELECT id, role_id, can_view, can_modify, can_add, can_remove, can_manage_users
		FROM permissions
		WHERE role_id = ?
	`

	perm := &domain.Permission{}
	var view, modify, add, remove, manage int
	err := r.db.QueryRowContext(ctx, query, roleID).Scan(
		&perm.ID,
		&perm.RoleID,
		&view,
		&modify,
		&add,
		&remove,
		&manage,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	perm.CanView = view != 0
	perm.CanModify = modify != 0
	perm.CanAdd = add != 0
	perm.CanRemove = remove != 0
	perm.CanManageUsers = manage != 0

	return perm, nil
}

// UpdatePermission replaces the capability flags of a role's permission record.
func (r *roleRepository) UpdatePermission(ctx context.Context, perm *domain.Permission) error {
	query := `
		UPDATE permissions
		SET can_view = ?, can_modify = ?, can_add = ?, can_remove = ?, can_manage_users = ?
		WHERE role_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(perm.CanView),
		boolToInt(perm.CanModify),
		boolToInt(perm.CanAdd),
		boolToInt(perm.CanRemove),
		boolToInt(perm.CanManageUsers),
		perm.RoleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrPermissionNotFound
	}
	return nil
}

// Delete removes a role. The permission record goes with it via cascade;
// users holding the role block the delete via RESTRICT.
func (r *roleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewDomainError(domain.ErrInvalidReference, "role is held by existing users", "")
		}
		return fmt.Errorf("failed to delete role: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

// CountUsers returns the number of users bound to the role.
func (r *roleRepository) CountUsers(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role_id = ?`, roleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count role users: %w", err)
	}
	return count, nil
}

// Ensure roleRepository implements repository.RoleRepository.
var _ repository.RoleRepository = (*roleRepository)(nil)
