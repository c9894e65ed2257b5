package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowedIP(t *testing.T) {
	cidrs := []string{"185.234.113.0/24", "10.0.0.0/8"}

	assert.True(t, IsAllowedIP("185.234.113.7", cidrs))
	assert.True(t, IsAllowedIP("10.20.30.40", cidrs))
	assert.False(t, IsAllowedIP("8.8.8.8", cidrs))
	assert.False(t, IsAllowedIP("not-an-ip", cidrs))
	assert.False(t, IsAllowedIP("185.234.113.7", nil))

	// Invalid CIDR entries are skipped, not fatal.
	assert.True(t, IsAllowedIP("10.1.1.1", []string{"bogus", "10.0.0.0/8"}))
}
