package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// KitchenStore implements ports.KitchenStore using Redis lists for the
// per-caller fridge and shopping list, and a hash for recipes.
type KitchenStore struct {
	base
}

// NewKitchenStore creates a kitchen store on an existing client.
func NewKitchenStore(client *backend.Client, opts ...Option) *KitchenStore {
	return &KitchenStore{base: newBase(client, opts)}
}

func (s *KitchenStore) fridgeKey(caller string) string   { return s.prefix + "fridge:" + caller }
func (s *KitchenStore) shoppingKey(caller string) string { return s.prefix + "shopping:" + caller }
func (s *KitchenStore) recipesKey() string               { return s.prefix + "recipes" }

func (s *KitchenStore) FridgeItems(ctx context.Context, caller string) ([]domain.FridgeItem, error) {
	return readList[domain.FridgeItem](ctx, s.client, s.fridgeKey(caller))
}

func (s *KitchenStore) AddFridgeItem(ctx context.Context, caller string, item domain.FridgeItem) error {
	return pushJSON(ctx, s.client, s.fridgeKey(caller), item)
}

func (s *KitchenStore) ShoppingList(ctx context.Context, caller string) ([]domain.ShoppingItem, error) {
	return readList[domain.ShoppingItem](ctx, s.client, s.shoppingKey(caller))
}

func (s *KitchenStore) AddShoppingItem(ctx context.Context, caller string, item domain.ShoppingItem) error {
	return pushJSON(ctx, s.client, s.shoppingKey(caller), item)
}

// AddRecipes stores recipes keyed by id.
func (s *KitchenStore) AddRecipes(ctx context.Context, recipes ...domain.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}
	fields := make([]any, 0, 2*len(recipes))
	for _, r := range recipes {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal recipe: %w", err)
		}
		fields = append(fields, r.ID, data)
	}
	return s.client.HSet(ctx, s.recipesKey(), fields...).Err()
}

// SearchRecipes scans the recipe hash. Results are ordered by recipe id.
func (s *KitchenStore) SearchRecipes(ctx context.Context, keyword string, limit int) ([]domain.Recipe, error) {
	all, err := s.client.HGetAll(ctx, s.recipesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes: %w", err)
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	kw := strings.ToLower(keyword)
	var out []domain.Recipe
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		var r domain.Recipe
		if err := json.Unmarshal([]byte(all[id]), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipe %s: %w", id, err)
		}
		if strings.Contains(strings.ToLower(r.Title), kw) || strings.Contains(strings.ToLower(r.Description), kw) {
			out = append(out, r)
		}
	}
	return out, nil
}

func pushJSON(ctx context.Context, client *backend.Client, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	if err := client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

func readList[T any](ctx context.Context, client *backend.Client, key string) ([]T, error) {
	vals, err := client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	out := make([]T, 0, len(vals))
	for _, v := range vals {
		var item T
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		out = append(out, item)
	}
	return out, nil
}
