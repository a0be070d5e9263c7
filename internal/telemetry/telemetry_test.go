package telemetry

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRecoverGRPC(t *testing.T) {
	t.Parallel()

	err := recoverGRPC(context.Background(), "boom")
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.ErrorContains(t, err, "panic: boom")
}

func TestIgnoreNil(t *testing.T) {
	t.Parallel()

	other := stderrors.New("connection refused")

	assert.NoError(t, ignoreNil(redis.Nil))
	assert.NoError(t, ignoreNil(nil))
	assert.Equal(t, other, ignoreNil(other))
}
