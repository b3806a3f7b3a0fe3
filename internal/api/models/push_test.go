package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trovehunt/pushgate/internal/api/models"
)

func TestSendTarget_UnmarshalAll(t *testing.T) {
	var req models.SendRequest
	err := json.Unmarshal([]byte(`{"target":"all","title":"hi"}`), &req)
	require.NoError(t, err)

	assert.True(t, req.Target.All)
	assert.False(t, req.Target.Empty())
}

func TestSendTarget_UnmarshalUserID(t *testing.T) {
	var req models.SendRequest
	err := json.Unmarshal([]byte(`{"target":{"userId":"player-1"},"title":"hi"}`), &req)
	require.NoError(t, err)

	assert.False(t, req.Target.All)
	assert.Equal(t, "player-1", req.Target.UserID)
}

func TestSendTarget_UnmarshalUserIDs(t *testing.T) {
	var req models.SendRequest
	err := json.Unmarshal([]byte(`{"target":{"userIds":["a","b"]},"title":"hi"}`), &req)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, req.Target.UserIDs)
}

func TestSendTarget_UnmarshalBadString(t *testing.T) {
	var target models.SendTarget
	err := json.Unmarshal([]byte(`"everyone"`), &target)
	assert.Error(t, err)
}

func TestSendTarget_MarshalAll(t *testing.T) {
	data, err := json.Marshal(models.SendTarget{All: true})
	require.NoError(t, err)
	assert.JSONEq(t, `"all"`, string(data))
}

func TestSendTarget_Empty(t *testing.T) {
	assert.True(t, models.SendTarget{}.Empty())
	assert.False(t, models.SendTarget{UserID: "x"}.Empty())
	assert.False(t, models.SendTarget{UserIDs: []string{"x"}}.Empty())
}
