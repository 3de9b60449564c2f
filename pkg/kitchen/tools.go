// Package kitchen provides the in-process tools that read and update a caller's kitchen:
// fridge inventory, shopping list and recipe search.
package kitchen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/ports"
	"github.com/dengzhuofu/foodai-agent/pkg/registry"
	"github.com/mitchellh/mapstructure"
)

// Tool names.
const (
	ToolGetFridgeItems  = "get_fridge_items"
	ToolAddFridgeItem   = "add_fridge_item"
	ToolGetShoppingList = "get_shopping_list"
	ToolAddShoppingItem = "add_shopping_item"
	ToolSearchRecipes   = "search_recipes"
)

const (
	// DefaultShelfLife is the expiry assigned to items added without one.
	DefaultShelfLife = 7 * 24 * time.Hour
	// MaxRecipes bounds the results of search_recipes.
	MaxRecipes = 5

	defaultQuantity = "1"
	defaultCategory = "other"
	dateLayout      = "2006-01-02"
)

// Tools implements the kitchen tools over a KitchenStore.
type Tools struct {
	store ports.KitchenStore
	now   func() time.Time
}

// Option configures Tools.
type Option func(*Tools)

// WithClock overrides the clock used to compute expiry dates.
func WithClock(now func() time.Time) Option {
	return func(t *Tools) {
		t.now = now
	}
}

// New creates the kitchen tools.
func New(store ports.KitchenStore, opts ...Option) *Tools {
	t := &Tools{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds every kitchen tool to reg as a local tool.
func Register(reg *registry.Registry, store ports.KitchenStore, opts ...Option) error {
	return New(store, opts...).Register(reg)
}

// Register adds every kitchen tool to reg as a local tool.
func (t *Tools) Register(reg *registry.Registry) error {
	for _, d := range t.definitions() {
		if err := reg.Register(d.desc, registry.Local{Fn: d.fn}); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the kitchen tool names in registration order.
func Names() []string {
	return []string{ToolGetFridgeItems, ToolAddFridgeItem, ToolGetShoppingList, ToolAddShoppingItem, ToolSearchRecipes}
}

type definition struct {
	desc domain.ToolDescriptor
	fn   registry.LocalFunc
}

func (t *Tools) definitions() []definition {
	return []definition{
		{
			desc: domain.ToolDescriptor{
				Name:        ToolGetFridgeItems,
				Description: "List every ingredient currently in the user's fridge with quantity and expiry date.",
				Parameters:  object(nil),
			},
			fn: t.getFridgeItems,
		},
		{
			desc: domain.ToolDescriptor{
				Name:        ToolAddFridgeItem,
				Description: "Add an ingredient to the user's fridge. It expires seven days from today.",
				Parameters: object(map[string]any{
					"name":     str("Ingredient name, e.g. eggs"),
					"quantity": loose("Quantity, e.g. 12 or 500g. Defaults to 1"),
					"category": str("Category, e.g. vegetables, meat, other"),
				}, "name"),
			},
			fn: t.addFridgeItem,
		},
		{
			desc: domain.ToolDescriptor{
				Name:        ToolGetShoppingList,
				Description: "Show the user's shopping list.",
				Parameters:  object(nil),
			},
			fn: t.getShoppingList,
		},
		{
			desc: domain.ToolDescriptor{
				Name:        ToolAddShoppingItem,
				Description: "Add an item to the user's shopping list.",
				Parameters: object(map[string]any{
					"name":     str("Item name"),
					"quantity": loose("Quantity. Defaults to 1"),
				}, "name"),
			},
			fn: t.addShoppingItem,
		},
		{
			desc: domain.ToolDescriptor{
				Name:        ToolSearchRecipes,
				Description: "Search recipes whose title or description contains a keyword.",
				Parameters: object(map[string]any{
					"keyword": str("Search keyword, e.g. chicken"),
				}, "keyword"),
			},
			fn: t.searchRecipes,
		},
	}
}

func object(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// loose declares a parameter the model may send as a string or a number.
func loose(desc string) map[string]any {
	return map[string]any{"description": desc}
}

type addFridgeArgs struct {
	Name     string `mapstructure:"name"`
	Quantity string `mapstructure:"quantity"`
	Category string `mapstructure:"category"`
}

type addShoppingArgs struct {
	Name     string `mapstructure:"name"`
	Quantity string `mapstructure:"quantity"`
}

type searchArgs struct {
	Keyword string `mapstructure:"keyword"`
}

// decode maps loosely typed model arguments onto out. Numbers are accepted for string fields.
func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (t *Tools) getFridgeItems(ctx context.Context, caller string, _ map[string]any) (string, error) {
	items, err := t.store.FridgeItems(ctx, caller)
	if err != nil {
		return "", fmt.Errorf("failed to load fridge items: %w", err)
	}
	if len(items) == 0 {
		return "The fridge is empty.", nil
	}

	var sb strings.Builder
	sb.WriteString("### Fridge inventory\n\n")
	for _, it := range items {
		expiry := "none"
		if !it.ExpiryDate.IsZero() {
			expiry = it.ExpiryDate.Format(dateLayout)
		}
		fmt.Fprintf(&sb, "- **%s**: %s (expires: %s)\n", it.Name, it.Quantity, expiry)
	}
	return sb.String(), nil
}

func (t *Tools) addFridgeItem(ctx context.Context, caller string, args map[string]any) (string, error) {
	var in addFridgeArgs
	if err := decode(args, &in); err != nil {
		return "", err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	if in.Quantity == "" {
		in.Quantity = defaultQuantity
	}
	if in.Category == "" {
		in.Category = defaultCategory
	}

	today := t.now()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	item := domain.FridgeItem{
		Name:       in.Name,
		Quantity:   in.Quantity,
		Category:   in.Category,
		ExpiryDate: today.Add(DefaultShelfLife),
	}
	if err := t.store.AddFridgeItem(ctx, caller, item); err != nil {
		return "", fmt.Errorf("failed to add fridge item: %w", err)
	}
	return fmt.Sprintf("Added %s %s to the fridge.", item.Quantity, item.Name), nil
}

func (t *Tools) getShoppingList(ctx context.Context, caller string, _ map[string]any) (string, error) {
	items, err := t.store.ShoppingList(ctx, caller)
	if err != nil {
		return "", fmt.Errorf("failed to load shopping list: %w", err)
	}
	if len(items) == 0 {
		return "The shopping list is empty.", nil
	}

	var sb strings.Builder
	sb.WriteString("### Shopping list\n\n")
	for _, it := range items {
		mark := " "
		if it.Purchased {
			mark = "x"
		}
		fmt.Fprintf(&sb, "- [%s] %s (%s)\n", mark, it.Name, it.Quantity)
	}
	return sb.String(), nil
}

func (t *Tools) addShoppingItem(ctx context.Context, caller string, args map[string]any) (string, error) {
	var in addShoppingArgs
	if err := decode(args, &in); err != nil {
		return "", err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	if in.Quantity == "" {
		in.Quantity = defaultQuantity
	}

	item := domain.ShoppingItem{Name: in.Name, Quantity: in.Quantity}
	if err := t.store.AddShoppingItem(ctx, caller, item); err != nil {
		return "", fmt.Errorf("failed to add shopping item: %w", err)
	}
	return fmt.Sprintf("Added %s %s to the shopping list.", item.Quantity, item.Name), nil
}

func (t *Tools) searchRecipes(ctx context.Context, _ string, args map[string]any) (string, error) {
	var in searchArgs
	if err := decode(args, &in); err != nil {
		return "", err
	}
	in.Keyword = strings.TrimSpace(in.Keyword)
	if in.Keyword == "" {
		return "", fmt.Errorf("keyword is required")
	}

	recipes, err := t.store.SearchRecipes(ctx, in.Keyword, MaxRecipes)
	if err != nil {
		return "", fmt.Errorf("failed to search recipes: %w", err)
	}
	if len(recipes) == 0 {
		return fmt.Sprintf("No recipes found for %q.", in.Keyword), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "### Recipes for %q\n\n", in.Keyword)
	for _, r := range recipes {
		desc := r.Description
		if desc == "" {
			desc = "no description"
		}
		cooking := r.CookingTime
		if cooking == "" {
			cooking = "unknown"
		}
		fmt.Fprintf(&sb, "#### %s\n- Time: %s\n- About: %s\n\n", r.Title, cooking, desc)
	}
	return sb.String(), nil
}
