package credentials

import (
	"context"
	stderrors "errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"metadata-enricher/internal/common/awsutil"
	"metadata-enricher/internal/common/errors"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerStore reads secrets from AWS Secrets Manager, using the
// reference as the secret id.
type SecretsManagerStore struct {
	client SecretsManagerAPI
}

// NewSecretsManagerStore wraps an existing client.
func NewSecretsManagerStore(client SecretsManagerAPI) *SecretsManagerStore {
	return &SecretsManagerStore{client: client}
}

// NewSecretsManagerStoreFromSettings builds a client from settings layered
// over the default AWS config chain.
func NewSecretsManagerStoreFromSettings(ctx context.Context, settings awsutil.Settings) (*SecretsManagerStore, error) {
	cfg, err := awsutil.LoadConfig(ctx, settings)
	if err != nil {
		return nil, err
	}
	return NewSecretsManagerStore(secretsmanager.NewFromConfig(cfg)), nil
}

// Name identifies the store in logs.
func (s *SecretsManagerStore) Name() string { return "aws_secrets_manager" }

// GetSecret returns SecretString, or SecretBinary when no string is stored.
func (s *SecretsManagerStore) GetSecret(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if stderrors.As(err, &notFound) {
			return nil, errors.SecretNotFoundError(ref, err)
		}
		if ctx.Err() != nil {
			return nil, errors.CancelledError("secret lookup", ctx.Err())
		}
		return nil, errors.TransportError("secrets manager request failed", err)
	}

	if out.SecretString != nil {
		return []byte(aws.ToString(out.SecretString)), nil
	}
	if len(out.SecretBinary) > 0 {
		return out.SecretBinary, nil
	}
	return nil, errors.SecretMalformedError("secret " + ref + " has no value")
}
