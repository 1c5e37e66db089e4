package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
)

type fakeSecretsManager struct {
	values map[string]*string
	err    error
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.values[*params.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: value}, nil
}

func TestResolve(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]*string{
		"influx-token": aws.String("tok-12345"),
	}}
	r := NewResolver(fake, zerolog.Nop())

	token, err := r.Resolve(context.Background(), "influx-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if token != "tok-12345" {
		t.Errorf("token = %q", token)
	}
}

func TestResolveMissingSecret(t *testing.T) {
	r := NewResolver(&fakeSecretsManager{values: map[string]*string{}}, zerolog.Nop())

	if _, err := r.Resolve(context.Background(), "absent"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestResolveServiceError(t *testing.T) {
	r := NewResolver(&fakeSecretsManager{err: errors.New("throttled")}, zerolog.Nop())

	if _, err := r.Resolve(context.Background(), "influx-token"); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolveEmptySecretString(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]*string{
		"empty":   aws.String(""),
		"missing": nil,
	}}
	r := NewResolver(fake, zerolog.Nop())

	if _, err := r.Resolve(context.Background(), "empty"); err == nil {
		t.Error("expected error for empty secret string")
	}
	if _, err := r.Resolve(context.Background(), "missing"); err == nil {
		t.Error("expected error for nil secret string")
	}
}
