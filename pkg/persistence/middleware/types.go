// Package middleware wraps persistence ports to add behaviour: encryption of provider
// credentials at rest and masking of personal data in transcripts.
package middleware

import "github.com/dengzhuofu/foodai-agent/pkg/ports"

// CredentialMiddleware wraps a CredentialStore.
type CredentialMiddleware func(ports.CredentialStore) ports.CredentialStore

// TranscriptMiddleware wraps a TranscriptStore.
type TranscriptMiddleware func(ports.TranscriptStore) ports.TranscriptStore
