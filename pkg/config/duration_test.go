package config

import (
	"testing"
	"time"
)

func TestValidatePositiveDuration(t *testing.T) {
	tests := []struct {
		name    string
		d       time.Duration
		wantErr bool
	}{
		{name: "positive", d: 15 * time.Second},
		{name: "tiny positive", d: time.Nanosecond},
		{name: "zero", d: 0, wantErr: true},
		{name: "negative", d: -time.Second, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositiveDuration(tt.d)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePositiveDuration(%v) error = %v, wantErr %v", tt.d, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDurationRange(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		min, max time.Duration
		wantErr  bool
	}{
		{name: "inside", d: time.Second, min: 100 * time.Millisecond, max: 5 * time.Minute},
		{name: "at min", d: 100 * time.Millisecond, min: 100 * time.Millisecond, max: time.Minute},
		{name: "at max", d: time.Minute, min: 100 * time.Millisecond, max: time.Minute},
		{name: "below", d: 50 * time.Millisecond, min: 100 * time.Millisecond, max: time.Minute, wantErr: true},
		{name: "above", d: 2 * time.Minute, min: 100 * time.Millisecond, max: time.Minute, wantErr: true},
		{name: "inverted range", d: time.Second, min: time.Minute, max: time.Millisecond, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDurationRange(tt.d, tt.min, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDurationRange(%v, %v, %v) error = %v, wantErr %v",
					tt.d, tt.min, tt.max, err, tt.wantErr)
			}
		})
	}
}
