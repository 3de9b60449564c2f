package ports

import (
	"context"
	"testing"
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunPresetStoreContract runs a suite of tests to verify that a PresetStore implementation
// adheres to the defined interface contract.
func RunPresetStoreContract(t *testing.T, store PresetStore) {
	ctx := context.Background()
	agentID := "contract-agent-" + time.Now().Format("20060102150405")

	t.Run("Save and Get", func(t *testing.T) {
		preset := domain.Preset{
			AgentID:      agentID,
			Owner:        "alice",
			Name:         "Chef",
			SystemPrompt: "You cook.",
			AllowedTools: []string{"get_fridge_items", "search_recipes"},
		}
		require.NoError(t, store.Save(ctx, preset), "Save should not return error")

		loaded, err := store.Get(ctx, agentID)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, preset, *loaded)
	})

	t.Run("Returned preset is a copy", func(t *testing.T) {
		loaded, err := store.Get(ctx, agentID)
		require.NoError(t, err)
		loaded.AllowedTools[0] = "mutated"

		again, err := store.Get(ctx, agentID)
		require.NoError(t, err)
		assert.Equal(t, "get_fridge_items", again.AllowedTools[0])
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+agentID)
		assert.ErrorIs(t, err, domain.ErrPresetNotFound)
	})

	t.Run("List", func(t *testing.T) {
		other := domain.Preset{AgentID: agentID + "-sys", Name: "System", SystemPrompt: "x"}
		require.NoError(t, store.Save(ctx, other))
		defer func() { _ = store.Delete(ctx, other.AgentID) }()

		presets, err := store.List(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(presets))
		for _, p := range presets {
			ids = append(ids, p.AgentID)
		}
		assert.Contains(t, ids, agentID)
		assert.Contains(t, ids, other.AgentID)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, agentID), "Delete should not return error")

		_, err := store.Get(ctx, agentID)
		assert.ErrorIs(t, err, domain.ErrPresetNotFound, "Get after Delete should return ErrPresetNotFound")

		assert.ErrorIs(t, store.Delete(ctx, agentID), domain.ErrPresetNotFound)
	})
}

// RunTranscriptStoreContract verifies a TranscriptStore implementation.
func RunTranscriptStoreContract(t *testing.T, store TranscriptStore) {
	ctx := context.Background()
	sessionID := "contract-transcript-" + time.Now().Format("20060102150405")

	t.Run("Unknown session is empty", func(t *testing.T) {
		msgs, err := store.History(ctx, "non-existent-"+sessionID, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("Append and History", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, sessionID,
			domain.Message{Role: domain.RoleUser, Content: "what is in my fridge?"},
			domain.Message{Role: domain.RoleAssistant, Content: "eggs and milk"},
		))
		require.NoError(t, store.Append(ctx, sessionID,
			domain.Message{Role: domain.RoleUser, Content: "thanks"},
		))

		msgs, err := store.History(ctx, sessionID, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "what is in my fridge?", msgs[0].Content)
		assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
		assert.Equal(t, "thanks", msgs[2].Content)
	})

	t.Run("History limit keeps the most recent", func(t *testing.T) {
		msgs, err := store.History(ctx, sessionID, 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "eggs and milk", msgs[0].Content)
		assert.Equal(t, "thanks", msgs[1].Content)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sessionID))
		msgs, err := store.History(ctx, sessionID, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

// RunCredentialStoreContract verifies a CredentialStore implementation.
func RunCredentialStoreContract(t *testing.T, store CredentialStore) {
	ctx := context.Background()

	t.Run("Missing credential", func(t *testing.T) {
		_, err := store.Credential(ctx, "nobody", "mcdonalds")
		assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
	})

	t.Run("Set and overwrite", func(t *testing.T) {
		require.NoError(t, store.SetCredential(ctx, "alice", "mcdonalds", "token-1"))
		require.NoError(t, store.SetCredential(ctx, "bob", "mcdonalds", "token-b"))

		tok, err := store.Credential(ctx, "alice", "mcdonalds")
		require.NoError(t, err)
		assert.Equal(t, "token-1", tok)

		require.NoError(t, store.SetCredential(ctx, "alice", "mcdonalds", "token-2"))
		tok, err = store.Credential(ctx, "alice", "mcdonalds")
		require.NoError(t, err)
		assert.Equal(t, "token-2", tok)

		tok, err = store.Credential(ctx, "bob", "mcdonalds")
		require.NoError(t, err)
		assert.Equal(t, "token-b", tok, "credentials must be isolated per caller")
	})

	t.Run("Isolated per provider", func(t *testing.T) {
		_, err := store.Credential(ctx, "alice", "amap")
		assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
	})
}

// RunKitchenStoreContract verifies a KitchenStore implementation.
// seed must make the given recipes searchable.
func RunKitchenStoreContract(t *testing.T, store KitchenStore, seed func(recipes ...domain.Recipe)) {
	ctx := context.Background()

	t.Run("Fridge", func(t *testing.T) {
		items, err := store.FridgeItems(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, items)

		expiry := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.AddFridgeItem(ctx, "alice", domain.FridgeItem{Name: "eggs", Quantity: "6", Category: "dairy", ExpiryDate: expiry}))
		require.NoError(t, store.AddFridgeItem(ctx, "bob", domain.FridgeItem{Name: "tofu", Quantity: "1"}))

		items, err = store.FridgeItems(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "eggs", items[0].Name)
		assert.True(t, expiry.Equal(items[0].ExpiryDate))
	})

	t.Run("Shopping list", func(t *testing.T) {
		require.NoError(t, store.AddShoppingItem(ctx, "alice", domain.ShoppingItem{Name: "milk", Quantity: "2"}))
		require.NoError(t, store.AddShoppingItem(ctx, "alice", domain.ShoppingItem{Name: "rice", Quantity: "1"}))

		items, err := store.ShoppingList(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "milk", items[0].Name)
		assert.Equal(t, "rice", items[1].Name)

		other, err := store.ShoppingList(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("Search recipes", func(t *testing.T) {
		seed(
			domain.Recipe{ID: "1", Title: "Tomato egg stir-fry", Description: "Classic home dish"},
			domain.Recipe{ID: "2", Title: "Mapo tofu", Description: "Spicy tofu with minced pork"},
			domain.Recipe{ID: "3", Title: "Egg fried rice", Description: "Leftover rice, eggs"},
		)

		found, err := store.SearchRecipes(ctx, "egg", 5)
		require.NoError(t, err)
		assert.Len(t, found, 2)

		found, err = store.SearchRecipes(ctx, "tofu", 5)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "2", found[0].ID)

		found, err = store.SearchRecipes(ctx, "egg", 1)
		require.NoError(t, err)
		assert.Len(t, found, 1)

		found, err = store.SearchRecipes(ctx, "durian", 5)
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}
