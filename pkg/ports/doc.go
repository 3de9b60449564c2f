/*
Package ports defines the driven ports (interfaces) of the FoodAI agent engine.

These interfaces decouple the agent loop and the provider sessions from external
implementations: the language model transport and the various persistence backends.

# Key Interfaces

  - ChatModel: Chat-completion with typed tool calls.
  - PresetStore: Persists agent presets.
  - TranscriptStore: Appends and queries conversation history keyed by session id.
  - CredentialStore: Per-caller credentials for remote tool providers.
  - KitchenStore: Inventory, shopping list and recipe data used by local tools.
  - DistributedLocker: Serialises provider handshakes and session runs across replicas.
*/
package ports
