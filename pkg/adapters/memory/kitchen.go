package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
)

// KitchenStore implements ports.KitchenStore in memory.
type KitchenStore struct {
	mu       sync.RWMutex
	fridge   map[string][]domain.FridgeItem
	shopping map[string][]domain.ShoppingItem
	recipes  []domain.Recipe
}

// NewKitchenStore creates an empty kitchen store.
func NewKitchenStore() *KitchenStore {
	return &KitchenStore{
		fridge:   make(map[string][]domain.FridgeItem),
		shopping: make(map[string][]domain.ShoppingItem),
	}
}

// AddRecipes makes recipes searchable.
func (s *KitchenStore) AddRecipes(recipes ...domain.Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes = append(s.recipes, recipes...)
}

func (s *KitchenStore) FridgeItems(ctx context.Context, caller string) ([]domain.FridgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.FridgeItem{}, s.fridge[caller]...), nil
}

func (s *KitchenStore) AddFridgeItem(ctx context.Context, caller string, item domain.FridgeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fridge[caller] = append(s.fridge[caller], item)
	return nil
}

func (s *KitchenStore) ShoppingList(ctx context.Context, caller string) ([]domain.ShoppingItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ShoppingItem{}, s.shopping[caller]...), nil
}

func (s *KitchenStore) AddShoppingItem(ctx context.Context, caller string, item domain.ShoppingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shopping[caller] = append(s.shopping[caller], item)
	return nil
}

// SearchRecipes does a case-insensitive substring match on title and description.
func (s *KitchenStore) SearchRecipes(ctx context.Context, keyword string, limit int) ([]domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kw := strings.ToLower(keyword)
	var out []domain.Recipe
	for _, r := range s.recipes {
		if limit > 0 && len(out) >= limit {
			break
		}
		if MatchRecipe(r, kw) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MatchRecipe reports whether the lower-cased keyword occurs in the recipe title or description.
func MatchRecipe(r domain.Recipe, keyword string) bool {
	return strings.Contains(strings.ToLower(r.Title), keyword) ||
		strings.Contains(strings.ToLower(r.Description), keyword)
}
