package resourcemgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderAvailCPUs(t *testing.T) {
	p := newProvider("build1", 4, &fakeSender{})
	assert.Equal(t, 4, p.AvailCPUs())

	p.UsedCPUs = 3
	assert.Equal(t, 1, p.AvailCPUs())
}
