package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSideFromCode(t *testing.T) {
	tests := []struct {
		code int
		want Side
	}{
		{10, SideBuy},
		{11, SideBuy},
		{20, SideSell},
		{21, SideSell},
		{0, SideOther},
		{12, SideOther},
		{99, SideOther},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SideFromCode(tc.code), "code %d", tc.code)
	}
}

func TestSideDirection(t *testing.T) {
	assert.Equal(t, 1.0, SideBuy.Direction())
	assert.Equal(t, -1.0, SideSell.Direction())
	assert.Equal(t, 0.0, SideOther.Direction())
}
