package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProject_ImageDataURL(t *testing.T) {
	p := &Project{Image: []byte("abc"), ImageMIME: "image/png"}
	assert.Equal(t, "data:image/png;base64,YWJj", p.ImageDataURL())

	p.ImageMIME = ""
	assert.Equal(t, "data:image/jpeg;base64,YWJj", p.ImageDataURL())

	assert.Empty(t, (&Project{}).ImageDataURL())
}
