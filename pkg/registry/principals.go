package registry

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/keymint/keymint/pkg/registry/models"
)

// ============================================
// PRINCIPAL OPERATIONS
// ============================================

func (s *GORMStore) FindPrincipal(ctx context.Context, name string) (*models.Principal, error) {
	return getByField[models.Principal](s.db, ctx, "name", name, models.ErrPrincipalNotFound)
}

func (s *GORMStore) ListPrincipals(ctx context.Context) ([]*models.Principal, error) {
	return listAll[models.Principal](s.db, ctx, "name ASC")
}

func (s *GORMStore) CreatePrincipal(ctx context.Context, principal *models.Principal) (string, error) {
	if err := principal.Validate(); err != nil {
		return "", fmt.Errorf("invalid principal: %w", err)
	}
	principal.CreatedAt = time.Now()
	return createWithID(s.db, ctx, principal, func(p *models.Principal, id string) { p.ID = id }, principal.ID, models.ErrDuplicatePrincipal)
}

func (s *GORMStore) UpdatePrincipal(ctx context.Context, principal *models.Principal) error {
	// Check if the principal exists first
	var existing models.Principal
	if err := s.db.WithContext(ctx).Where("id = ?", principal.ID).First(&existing).Error; err != nil {
		return convertNotFoundError(err, models.ErrPrincipalNotFound)
	}

	// Update specific fields using Select so zero values (IsService=false,
	// empty cached path) are written too
	return s.db.WithContext(ctx).
		Model(&existing).
		Select("IsService", "CachedKeytabPath").
		Updates(principal).Error
}

func (s *GORMStore) UpdateCachedKeytabPath(ctx context.Context, name, path string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("name = ?", name).
		Update("cached_keytab_path", path)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrPrincipalNotFound
	}
	return nil
}

func (s *GORMStore) DeletePrincipal(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var principal models.Principal
		if err := tx.Where("name = ?", name).First(&principal).Error; err != nil {
			return convertNotFoundError(err, models.ErrPrincipalNotFound)
		}

		// Delete host provisions
		if err := tx.Where("principal_name = ?", name).Delete(&models.HostProvision{}).Error; err != nil {
			return err
		}

		// Delete principal
		if err := tx.Delete(&principal).Error; err != nil {
			return err
		}

		return nil
	})
}
