package anthropic

import (
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
)

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&sdk.Error{StatusCode: 429}))
	assert.False(t, IsRateLimited(&sdk.Error{StatusCode: 500}))
	assert.False(t, IsRateLimited(errors.New("boom")))
	assert.False(t, IsRateLimited(nil))
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	assert.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
}
