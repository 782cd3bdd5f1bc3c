package redis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestIsNilError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"redis nil", redis.Nil, true},
		{"wrapped redis nil", fmt.Errorf("lookup: %w", redis.Nil), true},
		{"other error", errors.New("connection refused"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNilError(tt.err); got != tt.want {
				t.Errorf("IsNilError = %v, want %v", got, tt.want)
			}
		})
	}
}
