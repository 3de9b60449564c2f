package kitchen_test

import (
	"context"
	"testing"
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/adapters/memory"
	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/kitchen"
	"github.com/dengzhuofu/foodai-agent/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*registry.Registry, *memory.KitchenStore) {
	t.Helper()
	store := memory.NewKitchenStore()
	store.AddRecipes(
		domain.Recipe{ID: "1", Title: "Kung pao chicken", Description: "Spicy diced chicken", CookingTime: "20 min"},
		domain.Recipe{ID: "2", Title: "Chicken soup", CookingTime: "1 h"},
		domain.Recipe{ID: "3", Title: "Mapo tofu", Description: "Sichuan classic"},
	)
	clock := func() time.Time { return time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC) }

	reg := registry.NewRegistry()
	require.NoError(t, kitchen.Register(reg, store, kitchen.WithClock(clock)))
	return reg, store
}

func call(reg *registry.Registry, caller, name string, args map[string]any) domain.ToolResult {
	return reg.Invoke(context.Background(), caller, domain.ToolCall{ID: "c1", Name: name, Arguments: args})
}

func TestRegister_AllToolsLocal(t *testing.T) {
	reg, _ := setup(t)

	assert.Equal(t, kitchen.Names(), reg.Names())
	for _, d := range reg.Descriptors(kitchen.Names()) {
		assert.Equal(t, domain.ToolKindLocal, d.Kind)
		assert.Equal(t, "object", d.Parameters["type"])
		assert.NotEmpty(t, d.Description)
	}
}

func TestFridge_AddThenList(t *testing.T) {
	reg, store := setup(t)

	res := call(reg, "alice", kitchen.ToolGetFridgeItems, nil)
	require.True(t, res.OK)
	assert.Equal(t, "The fridge is empty.", res.Text)

	res = call(reg, "alice", kitchen.ToolAddFridgeItem, map[string]any{"name": "eggs", "quantity": 12})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "Added 12 eggs to the fridge.", res.Text)

	res = call(reg, "alice", kitchen.ToolAddFridgeItem, map[string]any{"name": "milk"})
	require.True(t, res.OK, res.Error)

	items, err := store.FridgeItems(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[1].Quantity)
	assert.Equal(t, "other", items[1].Category)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), items[0].ExpiryDate)

	res = call(reg, "alice", kitchen.ToolGetFridgeItems, nil)
	require.True(t, res.OK)
	assert.Contains(t, res.Text, "- **eggs**: 12 (expires: 2026-03-08)")
	assert.Contains(t, res.Text, "- **milk**: 1 (expires: 2026-03-08)")

	res = call(reg, "bob", kitchen.ToolGetFridgeItems, nil)
	assert.Equal(t, "The fridge is empty.", res.Text, "fridges are per caller")
}

func TestFridge_MissingNameFails(t *testing.T) {
	reg, _ := setup(t)

	res := call(reg, "alice", kitchen.ToolAddFridgeItem, map[string]any{"quantity": "2"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "invalid arguments")
}

func TestShoppingList(t *testing.T) {
	reg, _ := setup(t)

	res := call(reg, "alice", kitchen.ToolGetShoppingList, nil)
	assert.Equal(t, "The shopping list is empty.", res.Text)

	res = call(reg, "alice", kitchen.ToolAddShoppingItem, map[string]any{"name": "tofu", "quantity": "2 blocks"})
	require.True(t, res.OK, res.Error)

	res = call(reg, "alice", kitchen.ToolGetShoppingList, nil)
	require.True(t, res.OK)
	assert.Equal(t, "### Shopping list\n\n- [ ] tofu (2 blocks)\n", res.Text)
}

func TestSearchRecipes(t *testing.T) {
	reg, _ := setup(t)

	res := call(reg, "alice", kitchen.ToolSearchRecipes, map[string]any{"keyword": "chicken"})
	require.True(t, res.OK, res.Error)
	assert.Contains(t, res.Text, "#### Kung pao chicken\n- Time: 20 min\n- About: Spicy diced chicken")
	assert.Contains(t, res.Text, "#### Chicken soup\n- Time: 1 h\n- About: no description")
	assert.NotContains(t, res.Text, "Mapo tofu")

	res = call(reg, "alice", kitchen.ToolSearchRecipes, map[string]any{"keyword": "pizza"})
	require.True(t, res.OK)
	assert.Equal(t, `No recipes found for "pizza".`, res.Text)

	res = call(reg, "alice", kitchen.ToolSearchRecipes, map[string]any{"keyword": "  "})
	assert.False(t, res.OK)
}
