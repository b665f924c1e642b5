package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStyles(t *testing.T) {
	s := DefaultStyles()

	assert.True(t, s.Header.GetBold())
	assert.True(t, s.Active.GetBold())
	assert.NotEmpty(t, s.Success.Render("ok"))
}

func TestGetStyles(t *testing.T) {
	plain := GetStyles(true)
	assert.False(t, plain.Header.GetBold())
	assert.Equal(t, "● Scan", plain.Success.Render("● Scan"))

	assert.True(t, GetStyles(false).Header.GetBold())
}
