package registry

import (
	"context"
	"time"

	"github.com/keymint/keymint/pkg/registry/models"
)

// ============================================
// HOST PROVISION OPERATIONS
// ============================================

func (s *GORMStore) PrincipalProvisionedOnHost(ctx context.Context, principal, host string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.HostProvision{}).
		Where("principal_name = ? AND host = ?", principal, host).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GORMStore) MarkProvisioned(ctx context.Context, provision *models.HostProvision) error {
	provision.CreatedAt = time.Now()

	err := s.db.WithContext(ctx).Create(provision).Error
	if err == nil {
		return nil
	}
	if !isUniqueConstraintError(err) {
		return err
	}

	// Already recorded; refresh the materialized path
	return s.db.WithContext(ctx).
		Model(&models.HostProvision{}).
		Where("principal_name = ? AND host = ?", provision.PrincipalName, provision.Host).
		Update("keytab_path", provision.KeytabPath).Error
}

func (s *GORMStore) ListProvisions(ctx context.Context, principal string) ([]*models.HostProvision, error) {
	// Distinguish "no provisions" from "no such principal"
	if _, err := s.FindPrincipal(ctx, principal); err != nil {
		return nil, err
	}

	provisions := []*models.HostProvision{}
	err := s.db.WithContext(ctx).
		Where("principal_name = ?", principal).
		Order("host ASC").
		Find(&provisions).Error
	if err != nil {
		return nil, err
	}
	return provisions, nil
}

func (s *GORMStore) RemoveProvision(ctx context.Context, principal, host string) error {
	result := s.db.WithContext(ctx).
		Where("principal_name = ? AND host = ?", principal, host).
		Delete(&models.HostProvision{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrProvisionNotFound
	}
	return nil
}
