package main

import (
	"context"
	"testing"

	"neon/backend/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestInitAuth(t *testing.T) {
	cfg := &config.Config{}
	assert.NoError(t, initAuth(context.Background(), cfg, zap.NewNop()))

	cfg.Firebase.Credentials = "not-base64-%%%"
	assert.Error(t, initAuth(context.Background(), cfg, zap.NewNop()))

	cfg.Firebase.Credentials = ""
	assert.NoError(t, initAuth(context.Background(), cfg, zap.NewNop()))
}
