package config

import "context"

// SecretProvider abstracts secret retrieval so production can use AWS SSM
// Parameter Store while local development and tests use plain environment
// variables or fakes.
type SecretProvider interface {
	// GetParametersBatch resolves multiple secret identifiers in one logical
	// operation. The keys are SSM parameter paths (or equivalent). The
	// returned map contains an entry for every key that resolved; missing
	// keys are simply absent, letting the caller decide whether that is
	// fatal. Implementations batch and rate-limit internally.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
