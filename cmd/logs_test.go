package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentFromLogName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"engine-2026-08-25.log", "engine"},
		{"qd-sync-2026-08-25.log", "qd-sync"},
		{"devserver-2026-01-02.log", "devserver"},
		{"notalog.log", ""},
		{"short-2026-08.log", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, componentFromLogName(tt.name), tt.name)
	}
}
