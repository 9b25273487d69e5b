package party

import (
	"errors"
	"testing"

	"github.com/mmeshcher/denver-lending-system/internal/model"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		acting  string
		role    Role
		wantErr bool
	}{
		{name: "lender acts as lender", acting: "bank", role: RoleLender},
		{name: "borrower acts as borrower", acting: "alice", role: RoleBorrower},
		{name: "borrower acts as lender", acting: "alice", role: RoleLender, wantErr: true},
		{name: "lender acts as borrower", acting: "bank", role: RoleBorrower, wantErr: true},
		{name: "stranger", acting: "mallory", role: RoleLender, wantErr: true},
		{name: "empty acting party", acting: "", role: RoleBorrower, wantErr: true},
		{name: "unknown role", acting: "bank", role: Role("operator"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.acting, tt.role, "bank", "alice")
			if tt.wantErr {
				if !errors.Is(err, model.ErrUnauthorized) {
					t.Fatalf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
