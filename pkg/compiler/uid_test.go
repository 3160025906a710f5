package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueIDSequence(t *testing.T) {
	u := newUniqueID()
	assert.Equal(t, "1", u.Get())
	assert.Equal(t, "2", u.Get())
	assert.Equal(t, "3", u.Get())
}

func TestUniqueIDHexFormatting(t *testing.T) {
	u := newUniqueID()
	for i := 0; i < 14; i++ {
		u.Get()
	}
	assert.Equal(t, "f", u.Get())
	assert.Equal(t, "10", u.Get())
	assert.Equal(t, "11", u.Get())
}

func TestUniqueIDClear(t *testing.T) {
	u := newUniqueID()
	u.Get()
	u.Get()
	u.Clear()
	assert.Equal(t, "1", u.Get())
}
