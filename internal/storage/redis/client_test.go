package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gil0mendes/Stellar/internal/config"
)

func TestOpenRejectsEmptyAddress(t *testing.T) {
	_, err := Open(context.Background(), config.RedisConfig{})
	assert.ErrorContains(t, err, "address is empty")
}

func TestOpenFailsOnUnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Open(ctx, config.RedisConfig{Address: "127.0.0.1:1"})
	assert.ErrorContains(t, err, "connect redis")
}
