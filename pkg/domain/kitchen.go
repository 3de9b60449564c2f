package domain

import "time"

// FridgeItem is an ingredient tracked in a caller's fridge.
type FridgeItem struct {
	Name       string    `json:"name"`
	Quantity   string    `json:"quantity"`
	Category   string    `json:"category,omitempty"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// ShoppingItem is an entry of a caller's shopping list.
type ShoppingItem struct {
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	Purchased bool   `json:"purchased"`
}

// Recipe is a searchable recipe summary.
type Recipe struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	CookingTime string   `json:"cooking_time,omitempty" yaml:"cooking_time,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}
