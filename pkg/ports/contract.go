package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	userID := "contract-test-user-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(userID)
		state.Conversation = append(state.Conversation, domain.Message{Role: domain.RoleUser, Content: "hello"})
		state.Attempts[domain.RoutingAgent] = 1
		state.NodeHistory = append(state.NodeHistory, domain.NodeRecord{
			Node:    domain.RoutingAgent,
			Attempt: 1,
			Decision: []domain.Handoff{{
				Agent:  domain.RespondToUser,
				Params: domain.RespondParameters{MessageToStudent: "Hi!", AgentAfterResponse: domain.RoutingAgent},
			}},
		})

		err := store.Save(ctx, userID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, userID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, userID, loaded.UserID)
		assert.Equal(t, state.Conversation, loaded.Conversation)
		assert.Equal(t, 1, loaded.Attempts[domain.RoutingAgent])
		require.Len(t, loaded.NodeHistory, 1)
		assert.Equal(t, state.NodeHistory[0].Decision[0].Params, loaded.NodeHistory[0].Decision[0].Params)
	})

	t.Run("Loaded State Is Isolated", func(t *testing.T) {
		loaded, err := store.Load(ctx, userID)
		require.NoError(t, err)
		loaded.Attempts[domain.RoutingAgent] = 99
		loaded.Conversation = append(loaded.Conversation, domain.Message{Role: domain.RoleAssistant, Content: "x"})

		again, err := store.Load(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 1, again.Attempts[domain.RoutingAgent])
		assert.Len(t, again.Conversation, 1)
	})

	t.Run("Last Write Wins", func(t *testing.T) {
		state := domain.NewState(userID)
		state.CurrentMessage = "second"
		require.NoError(t, store.Save(ctx, userID, state))

		loaded, err := store.Load(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "second", loaded.CurrentMessage)
		assert.Empty(t, loaded.NodeHistory)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+userID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, userID, domain.NewState(userID))
		require.NoError(t, err)

		err = store.Delete(ctx, userID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, userID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := userID + "-1"
		id2 := userID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewState(id1)))
		require.NoError(t, store.Save(ctx, id2, domain.NewState(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		users, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, users, id1)
		assert.Contains(t, users, id2)
	})
}
