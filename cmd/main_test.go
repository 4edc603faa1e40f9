package main

import (
	"testing"
	"time"
)

func TestWatchInterval(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
		wantErr bool
	}{
		{seconds: 300, want: 5 * time.Minute},
		{seconds: 1, want: time.Second},
		{seconds: 0, wantErr: true},
		{seconds: -5, wantErr: true},
	}
	for _, tt := range tests {
		got, err := watchInterval(tt.seconds)
		if (err != nil) != tt.wantErr {
			t.Errorf("watchInterval(%d) error = %v, wantErr %v", tt.seconds, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("watchInterval(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}
