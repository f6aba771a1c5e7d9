//go:build integration

package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/keymint/keymint/pkg/registry/models"
)

// createTestStore creates an in-memory SQLite store for testing.
func createTestStore(t *testing.T) *GORMStore {
	t.Helper()
	store, err := New(&Config{
		Type: DatabaseTypeSQLite,
		SQLite: SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return store
}

func TestNew(t *testing.T) {
	t.Run("default config uses sqlite", func(t *testing.T) {
		config := &Config{}
		config.ApplyDefaults()

		if config.Type != DatabaseTypeSQLite {
			t.Errorf("expected SQLite, got %s", config.Type)
		}
	})

	t.Run("invalid config returns error", func(t *testing.T) {
		config := &Config{
			Type: "invalid",
		}
		_, err := New(config)
		if err == nil {
			t.Error("expected error for invalid config")
		}
	})

	t.Run("creates in-memory store", func(t *testing.T) {
		store := createTestStore(t)
		defer store.Close()

		if err := store.Healthcheck(context.Background()); err != nil {
			t.Errorf("healthcheck failed: %v", err)
		}
	})
}

func TestPrincipalOperations(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	t.Run("create principal", func(t *testing.T) {
		principal := &models.Principal{
			Name:      "dn/host1.example.com@EXAMPLE.COM",
			IsService: true,
		}

		id, err := store.CreatePrincipal(ctx, principal)
		if err != nil {
			t.Fatalf("failed to create principal: %v", err)
		}
		if id == "" {
			t.Error("expected non-empty principal ID")
		}
	})

	t.Run("duplicate principal fails", func(t *testing.T) {
		principal := &models.Principal{
			Name: "dn/host1.example.com@EXAMPLE.COM",
		}

		_, err := store.CreatePrincipal(ctx, principal)
		if !errors.Is(err, models.ErrDuplicatePrincipal) {
			t.Errorf("expected ErrDuplicatePrincipal, got %v", err)
		}
	})

	t.Run("invalid principal fails", func(t *testing.T) {
		_, err := store.CreatePrincipal(ctx, &models.Principal{})
		if err == nil {
			t.Error("expected error for principal without name")
		}
	})

	t.Run("find principal", func(t *testing.T) {
		principal, err := store.FindPrincipal(ctx, "dn/host1.example.com@EXAMPLE.COM")
		if err != nil {
			t.Fatalf("failed to find principal: %v", err)
		}
		if principal.Name != "dn/host1.example.com@EXAMPLE.COM" {
			t.Errorf("unexpected principal name %q", principal.Name)
		}
		if !principal.IsService {
			t.Error("expected service principal")
		}
	})

	t.Run("find principal not found", func(t *testing.T) {
		_, err := store.FindPrincipal(ctx, "nonexistent@EXAMPLE.COM")
		if !errors.Is(err, models.ErrPrincipalNotFound) {
			t.Errorf("expected ErrPrincipalNotFound, got %v", err)
		}
	})

	t.Run("update cached keytab path", func(t *testing.T) {
		err := store.UpdateCachedKeytabPath(ctx, "dn/host1.example.com@EXAMPLE.COM", "/var/lib/keymint/cache/abc123")
		if err != nil {
			t.Fatalf("failed to update cached keytab path: %v", err)
		}

		principal, _ := store.FindPrincipal(ctx, "dn/host1.example.com@EXAMPLE.COM")
		if principal.CachedKeytabPath != "/var/lib/keymint/cache/abc123" {
			t.Errorf("cached keytab path not recorded, got %q", principal.CachedKeytabPath)
		}
		if !principal.HasCachedKeytab() {
			t.Error("expected HasCachedKeytab to be true")
		}
	})

	t.Run("clear cached keytab path", func(t *testing.T) {
		err := store.UpdateCachedKeytabPath(ctx, "dn/host1.example.com@EXAMPLE.COM", "")
		if err != nil {
			t.Fatalf("failed to clear cached keytab path: %v", err)
		}

		principal, _ := store.FindPrincipal(ctx, "dn/host1.example.com@EXAMPLE.COM")
		if principal.HasCachedKeytab() {
			t.Error("expected cached keytab path to be cleared")
		}
	})

	t.Run("update cached keytab path not found", func(t *testing.T) {
		err := store.UpdateCachedKeytabPath(ctx, "ghost@EXAMPLE.COM", "/tmp/x")
		if !errors.Is(err, models.ErrPrincipalNotFound) {
			t.Errorf("expected ErrPrincipalNotFound, got %v", err)
		}
	})

	t.Run("update principal", func(t *testing.T) {
		principal, _ := store.FindPrincipal(ctx, "dn/host1.example.com@EXAMPLE.COM")
		principal.IsService = false

		if err := store.UpdatePrincipal(ctx, principal); err != nil {
			t.Fatalf("failed to update principal: %v", err)
		}

		updated, _ := store.FindPrincipal(ctx, "dn/host1.example.com@EXAMPLE.COM")
		if updated.IsService {
			t.Error("expected IsService to be updated to false")
		}
	})

	t.Run("update principal not found", func(t *testing.T) {
		err := store.UpdatePrincipal(ctx, &models.Principal{ID: "no-such-id"})
		if !errors.Is(err, models.ErrPrincipalNotFound) {
			t.Errorf("expected ErrPrincipalNotFound, got %v", err)
		}
	})

	t.Run("list principals ordered by name", func(t *testing.T) {
		if _, err := store.CreatePrincipal(ctx, &models.Principal{Name: "smoke-qa@EXAMPLE.COM", IsService: false}); err != nil {
			t.Fatalf("failed to create principal: %v", err)
		}

		principals, err := store.ListPrincipals(ctx)
		if err != nil {
			t.Fatalf("failed to list principals: %v", err)
		}
		if len(principals) != 2 {
			t.Fatalf("expected 2 principals, got %d", len(principals))
		}
		if principals[0].Name != "dn/host1.example.com@EXAMPLE.COM" {
			t.Errorf("expected dn/host1.example.com first, got %q", principals[0].Name)
		}
		if principals[1].Name != "smoke-qa@EXAMPLE.COM" {
			t.Errorf("expected smoke-qa last, got %q", principals[1].Name)
		}
	})

	t.Run("delete principal", func(t *testing.T) {
		if err := store.DeletePrincipal(ctx, "smoke-qa@EXAMPLE.COM"); err != nil {
			t.Fatalf("failed to delete principal: %v", err)
		}

		_, err := store.FindPrincipal(ctx, "smoke-qa@EXAMPLE.COM")
		if !errors.Is(err, models.ErrPrincipalNotFound) {
			t.Errorf("expected ErrPrincipalNotFound after delete, got %v", err)
		}
	})

	t.Run("delete principal not found", func(t *testing.T) {
		err := store.DeletePrincipal(ctx, "smoke-qa@EXAMPLE.COM")
		if !errors.Is(err, models.ErrPrincipalNotFound) {
			t.Errorf("expected ErrPrincipalNotFound, got %v", err)
		}
	})
}

func TestProvisionOperations(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	principal := &models.Principal{Name: "hdfs@EXAMPLE.COM", IsService: false}
	if _, err := store.CreatePrincipal(ctx, principal); err != nil {
		t.Fatalf("failed to create principal: %v", err)
	}

	t.Run("not provisioned initially", func(t *testing.T) {
		provisioned, err := store.PrincipalProvisionedOnHost(ctx, "hdfs@EXAMPLE.COM", "host1.example.com")
		if err != nil {
			t.Fatalf("failed to check provision: %v", err)
		}
		if provisioned {
			t.Error("expected principal to not be provisioned")
		}
	})

	t.Run("mark provisioned", func(t *testing.T) {
		err := store.MarkProvisioned(ctx, &models.HostProvision{
			PrincipalName: "hdfs@EXAMPLE.COM",
			Host:          "host1.example.com",
			KeytabPath:    "/etc/security/keytabs/hdfs.headless.keytab",
		})
		if err != nil {
			t.Fatalf("failed to mark provisioned: %v", err)
		}

		provisioned, err := store.PrincipalProvisionedOnHost(ctx, "hdfs@EXAMPLE.COM", "host1.example.com")
		if err != nil {
			t.Fatalf("failed to check provision: %v", err)
		}
		if !provisioned {
			t.Error("expected principal to be provisioned")
		}
	})

	t.Run("mark provisioned again refreshes path", func(t *testing.T) {
		err := store.MarkProvisioned(ctx, &models.HostProvision{
			PrincipalName: "hdfs@EXAMPLE.COM",
			Host:          "host1.example.com",
			KeytabPath:    "/etc/security/keytabs/hdfs.relocated.keytab",
		})
		if err != nil {
			t.Fatalf("failed to re-mark provisioned: %v", err)
		}

		provisions, err := store.ListProvisions(ctx, "hdfs@EXAMPLE.COM")
		if err != nil {
			t.Fatalf("failed to list provisions: %v", err)
		}
		if len(provisions) != 1 {
			t.Fatalf("expected 1 provision, got %d", len(provisions))
		}
		if provisions[0].KeytabPath != "/etc/security/keytabs/hdfs.relocated.keytab" {
			t.Errorf("expected refreshed keytab path, got %q", provisions[0].KeytabPath)
		}
	})

	t.Run("list provisions ordered by host", func(t *testing.T) {
		err := store.MarkProvisioned(ctx, &models.HostProvision{
			PrincipalName: "hdfs@EXAMPLE.COM",
			Host:          "host0.example.com",
		})
		if err != nil {
			t.Fatalf("failed to mark provisioned: %v", err)
		}

		provisions, err := store.ListProvisions(ctx, "hdfs@EXAMPLE.COM")
		if err != nil {
			t.Fatalf("failed to list provisions: %v", err)
		}
		if len(provisions) != 2 {
			t.Fatalf("expected 2 provisions, got %d", len(provisions))
		}
		if provisions[0].Host != "host0.example.com" {
			t.Errorf("expected host0 first, got %q", provisions[0].Host)
		}
	})

	t.Run("list provisions for unknown principal", func(t *testing.T) {
		_, err := store.ListProvisions(ctx, "ghost@EXAMPLE.COM")
		if !errors.Is(err, models.ErrPrincipalNotFound) {
			t.Errorf("expected ErrPrincipalNotFound, got %v", err)
		}
	})

	t.Run("remove provision", func(t *testing.T) {
		err := store.RemoveProvision(ctx, "hdfs@EXAMPLE.COM", "host0.example.com")
		if err != nil {
			t.Fatalf("failed to remove provision: %v", err)
		}

		provisioned, _ := store.PrincipalProvisionedOnHost(ctx, "hdfs@EXAMPLE.COM", "host0.example.com")
		if provisioned {
			t.Error("expected provision to be removed")
		}
	})

	t.Run("remove provision not found", func(t *testing.T) {
		err := store.RemoveProvision(ctx, "hdfs@EXAMPLE.COM", "host0.example.com")
		if !errors.Is(err, models.ErrProvisionNotFound) {
			t.Errorf("expected ErrProvisionNotFound, got %v", err)
		}
	})

	t.Run("delete principal removes provisions", func(t *testing.T) {
		if err := store.DeletePrincipal(ctx, "hdfs@EXAMPLE.COM"); err != nil {
			t.Fatalf("failed to delete principal: %v", err)
		}

		provisioned, err := store.PrincipalProvisionedOnHost(ctx, "hdfs@EXAMPLE.COM", "host1.example.com")
		if err != nil {
			t.Fatalf("failed to check provision: %v", err)
		}
		if provisioned {
			t.Error("expected provisions to be removed with the principal")
		}
	})
}
