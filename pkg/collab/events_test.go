package collab

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	frame, err := EncodeEvent(EventLockDenied, LockDeniedPayload{EntityID: "card-1"})
	require.NoError(t, err)

	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, EventLockDenied, env.Event)

	var payload LockDeniedPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "card-1", payload.EntityID)
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("rejects malformed frames", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte("{not json"))
		assert.Error(t, err)
	})

	t.Run("rejects frames without an event name", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`{"data": {}}`))
		assert.Error(t, err)
	})
}

func TestMoveEntityRequestValidate(t *testing.T) {
	valid := MoveEntityRequest{
		EntityID: uuid.New().String(),
		ParentID: uuid.New().String(),
	}

	t.Run("accepts a minimal move", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("accepts neighbor ids", func(t *testing.T) {
		r := valid
		r.InsertAfter = uuid.New().String()
		r.InsertBefore = uuid.New().String()
		assert.NoError(t, r.Validate())
	})

	t.Run("rejects bad entity id", func(t *testing.T) {
		r := valid
		r.EntityID = "nope"
		assert.Error(t, r.Validate())
	})

	t.Run("rejects bad neighbor id", func(t *testing.T) {
		r := valid
		r.InsertAfter = "nope"
		assert.Error(t, r.Validate())
	})
}

func TestJoinBoardRequestValidate(t *testing.T) {
	assert.NoError(t, (&JoinBoardRequest{BoardID: uuid.New().String()}).Validate())
	assert.Error(t, (&JoinBoardRequest{BoardID: "b"}).Validate())
}
