package recording

import (
	"context"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAuthorizer(t *testing.T) {
	assert.Equal(t, types.PermissionGranted, Static(true).Status())
	assert.Equal(t, types.PermissionDenied, Static(false).Status())

	ok, err := Static(false).Request(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPromptResolvesWaiters(t *testing.T) {
	p := NewPrompt()
	assert.Equal(t, types.PermissionUndetermined, p.Status())

	prompted := make(chan struct{}, 1)
	p.OnPrompt = func() { prompted <- struct{}{} }

	result := make(chan bool, 1)
	go func() {
		ok, _ := p.Request(context.Background())
		result <- ok
	}()

	<-prompted
	assert.True(t, p.Pending())
	p.Resolve(true)
	assert.True(t, <-result)
	assert.Equal(t, types.PermissionGranted, p.Status())
	assert.False(t, p.Pending())

	// The decision sticks.
	ok, err := p.Request(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPromptHonoursContext(t *testing.T) {
	p := NewPrompt()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ok, err := p.Request(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewAuthorizer(t *testing.T) {
	for _, policy := range []string{"granted", "denied", "prompt"} {
		a, err := NewAuthorizer(policy)
		require.NoError(t, err, policy)
		assert.NotNil(t, a)
	}
	_, err := NewAuthorizer("ask")
	assert.Error(t, err)
}
