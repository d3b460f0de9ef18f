package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
)

func TestCreatePProfServerDisabledReturnsNil(t *testing.T) {
	cfg := &config.Config{PProf: config.PProf{Enabled: false}}
	err := createPProfServer(cfg)
	assert.NoError(t, err)
}
