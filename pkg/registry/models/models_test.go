package models

import (
	"testing"
)

func TestPrincipal_Validate(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		wantErr   bool
	}{
		{"valid service principal", Principal{Name: "dn/host1.example.com@EXAMPLE.COM"}, false},
		{"valid user principal", Principal{Name: "smoke-qa@EXAMPLE.COM", IsService: false}, false},
		{"missing name", Principal{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.principal.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrincipal_HasCachedKeytab(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		expected  bool
	}{
		{"with cached path", Principal{Name: "hdfs", CachedKeytabPath: "/var/lib/keymint/cache/abc"}, true},
		{"without cached path", Principal{Name: "hdfs"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.principal.HasCachedKeytab(); got != tt.expected {
				t.Errorf("HasCachedKeytab() = %v, want %v", got, tt.expected)
			}
		})
	}
}
