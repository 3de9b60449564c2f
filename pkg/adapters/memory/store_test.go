package memory_test

import (
	"testing"

	"github.com/dengzhuofu/foodai-agent/pkg/adapters/memory"
	"github.com/dengzhuofu/foodai-agent/pkg/ports"
)

func TestPresetStore_Contract(t *testing.T) {
	ports.RunPresetStoreContract(t, memory.NewPresetStore())
}

func TestTranscriptStore_Contract(t *testing.T) {
	ports.RunTranscriptStoreContract(t, memory.NewTranscriptStore())
}

func TestCredentialStore_Contract(t *testing.T) {
	ports.RunCredentialStoreContract(t, memory.NewCredentialStore())
}

func TestKitchenStore_Contract(t *testing.T) {
	store := memory.NewKitchenStore()
	ports.RunKitchenStoreContract(t, store, store.AddRecipes)
}
