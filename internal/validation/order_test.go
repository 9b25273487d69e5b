package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/denver-lending-system/internal/model"
)

func TestValidateOrderParams(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		rate     string
		duration int
		wantErr  bool
	}{
		{name: "valid", amount: "15000", rate: "5.5", duration: 90},
		{name: "zero amount", amount: "0", rate: "5.5", duration: 90, wantErr: true},
		{name: "negative amount", amount: "-1", rate: "5.5", duration: 90, wantErr: true},
		{name: "zero rate", amount: "100", rate: "0", duration: 90, wantErr: true},
		{name: "rate above ceiling", amount: "100", rate: "100.01", duration: 90, wantErr: true},
		{name: "rate at ceiling", amount: "100", rate: "100", duration: 90},
		{name: "zero duration", amount: "100", rate: "5", duration: 0, wantErr: true},
		{name: "duration too long", amount: "100", rate: "5", duration: 3651, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrderParams(
				decimal.RequireFromString(tt.amount),
				decimal.RequireFromString(tt.rate),
				tt.duration,
			)
			if tt.wantErr {
				if !errors.Is(err, model.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
