package ports

import (
	"context"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
)

// PresetStore persists agent presets keyed by agent id.
// Ownership rules are enforced by the caller of the store.
type PresetStore interface {
	// Get returns domain.ErrPresetNotFound if the preset does not exist.
	Get(ctx context.Context, agentID string) (*domain.Preset, error)
	Save(ctx context.Context, preset domain.Preset) error
	// Delete returns domain.ErrPresetNotFound if the preset does not exist.
	Delete(ctx context.Context, agentID string) error
	List(ctx context.Context) ([]domain.Preset, error)
}

// TranscriptStore keeps conversation history keyed by a session id.
type TranscriptStore interface {
	// Append adds messages to the end of the session history.
	Append(ctx context.Context, sessionID string, msgs ...domain.Message) error

	// History returns at most limit of the most recent messages, oldest first.
	// A limit <= 0 returns everything. Unknown sessions yield an empty history.
	History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	Delete(ctx context.Context, sessionID string) error
}

// CredentialStore holds the per-caller credential for each remote provider.
type CredentialStore interface {
	// Credential returns domain.ErrCredentialNotFound when nothing is stored.
	Credential(ctx context.Context, caller, provider string) (string, error)
	SetCredential(ctx context.Context, caller, provider, token string) error
}

// KitchenStore is the persistence behind the local kitchen tools.
type KitchenStore interface {
	FridgeItems(ctx context.Context, caller string) ([]domain.FridgeItem, error)
	AddFridgeItem(ctx context.Context, caller string, item domain.FridgeItem) error
	ShoppingList(ctx context.Context, caller string) ([]domain.ShoppingItem, error)
	AddShoppingItem(ctx context.Context, caller string, item domain.ShoppingItem) error
	// SearchRecipes matches keyword against titles and descriptions, returning at most limit recipes.
	SearchRecipes(ctx context.Context, keyword string, limit int) ([]domain.Recipe, error)
}
