package gamev1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_WireFormat(t *testing.T) {
	c := Codec{}
	assert.Equal(t, "json", c.Name())

	data, err := c.Marshal(&ClickRequest{Key: SessionKey{ChatID: 7, UserID: 9}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":{"chat_id":7,"user_id":9}}`, string(data))

	var req RegisterRequest
	require.NoError(t, c.Unmarshal([]byte(`{"key":{"chat_id":1,"user_id":2},"identity":"Alice"}`), &req))
	assert.Equal(t, SessionKey{ChatID: 1, UserID: 2}, req.Key)
	assert.Equal(t, "Alice", req.Identity)
}

func TestCodec_EmptyBody(t *testing.T) {
	var req GetStatusRequest
	assert.NoError(t, Codec{}.Unmarshal(nil, &req))
}

func TestCodec_InvalidJSON(t *testing.T) {
	var req StartRequest
	assert.Error(t, Codec{}.Unmarshal([]byte(`{"key":`), &req))
}
