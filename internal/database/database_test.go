package database

import (
	"context"
	"testing"

	"storefront/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_Unreachable(t *testing.T) {
	cfg := config.DatabaseConfig{
		Enabled:         true,
		Host:            "127.0.0.1",
		Port:            1,
		User:            "storefront",
		Password:        "secret",
		Database:        "storefront",
		MaxConnections:  2,
		MinConnections:  0,
		MaxConnLifetime: 60,
	}

	pool, err := NewPool(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
	assert.Nil(t, pool)
}
