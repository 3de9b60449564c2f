package domain

import "errors"

var (
	// ErrToolNotFound is returned when a tool name is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNotAllowed is returned when a tool is outside the active allow-list.
	ErrToolNotAllowed = errors.New("tool not available")

	// ErrPresetNotFound is returned when an agent id cannot be resolved for the caller.
	ErrPresetNotFound = errors.New("preset not found")

	// ErrPresetForbidden is returned when a caller tries to change a preset it does not own.
	ErrPresetForbidden = errors.New("preset not owned by caller")

	// ErrInvalidPreset is returned when a preset fails validation.
	ErrInvalidPreset = errors.New("invalid preset")

	// ErrConnection is returned when a provider transport cannot be established.
	ErrConnection = errors.New("provider connection failed")

	// ErrProviderNotFound is returned for an unknown provider name.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrCredentialNotFound is returned when a caller has no credential for a provider.
	ErrCredentialNotFound = errors.New("credential not found")
)
