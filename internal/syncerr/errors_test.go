package syncerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "entity and seq",
			err:  InvalidTransition("E1", 9, "completed", "order-started"),
			want: "INVALID_TRANSITION: order-started is not allowed in state completed (entity=E1, seq=9)",
		},
		{
			name: "entity only",
			err:  Stale("E1", 9, 7),
			want: "STALE_CHECKPOINT: checkpoint is 9, cannot advance to 7 (entity=E1)",
		},
		{
			name: "with cause",
			err:  CacheIO("get", "order:42:summary", errors.New("connection refused")),
			want: "CACHE_IO: get order:42:summary: connection refused",
		},
		{
			name: "no prior state",
			err:  InvalidTransition("E2", 1, "", "order-started"),
			want: "INVALID_TRANSITION: order-started is not allowed in state none (entity=E2, seq=1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIs_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("commit order: %w", Stale("E1", 3, 3))

	assert.True(t, IsStale(err))
	assert.False(t, IsInvalidTransition(err))
	assert.Equal(t, CodeStaleCheckpoint, CodeOf(err))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestIsSkippable(t *testing.T) {
	assert.True(t, IsSkippable(Malformed("E1", 2, "missing %s", "createdAt")))
	assert.True(t, IsSkippable(UnknownKind("E1", 2, "order-teleported")))
	assert.False(t, IsSkippable(ExternalIO("E1", "fetch events", errors.New("timeout"))))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ExternalIO("E1", "fetch events", cause)
	assert.ErrorIs(t, err, cause)
}
