package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcbrecon/internal/model"
)

func TestEncodeDecodeMessage(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	payload, err := EncodeMessage(&model.ChatMessage{
		ProjectID: 7,
		Sender:    model.SenderUser,
		Message:   "Where is the SWD header?",
		CreatedAt: created,
	})
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"project_id":7`)

	msg, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, uint(7), msg.ProjectID)
	assert.Equal(t, "Where is the SWD header?", msg.Message)
	assert.True(t, created.Equal(msg.CreatedAt))
}

func TestDecodeMessage_Rejects(t *testing.T) {
	_, err := DecodeMessage([]byte("{not json"))
	assert.Error(t, err)
	_, err = DecodeMessage([]byte(`{"sender":"user","message":"x"}`))
	assert.ErrorContains(t, err, "missing project")

	_, err = EncodeMessage(nil)
	assert.Error(t, err)
}
