// Package secrets fetches the InfluxDB auth token from AWS Secrets Manager.
package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
)

// API is the subset of the Secrets Manager client the resolver uses.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver fetches secret values by identifier.
//
// Any error from the secret store is propagated as-is: the caller cannot
// distinguish a transient outage from a misconfiguration, so there is no
// local retry.
type Resolver struct {
	api    API
	logger zerolog.Logger
}

// NewResolver creates a Resolver backed by the given Secrets Manager client.
func NewResolver(api API, logger zerolog.Logger) *Resolver {
	return &Resolver{
		api:    api,
		logger: logger.With().Str("component", "secrets").Logger(),
	}
}

// Resolve returns the secret string stored under the given identifier.
func (r *Resolver) Resolve(ctx context.Context, secretID string) (string, error) {
	out, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("secret_id", secretID).Msg("failed to retrieve secret")
		return "", fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}
	return *out.SecretString, nil
}
