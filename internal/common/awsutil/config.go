// Package awsutil loads the shared AWS SDK configuration used by the
// Secrets Manager credential store and the S3 config loader.
package awsutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"metadata-enricher/internal/common/errors"
)

// Settings overrides parts of the default AWS configuration. The zero
// value defers everything to the SDK's default chain.
type Settings struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Endpoint replaces every service endpoint, e.g. a LocalStack URL.
	Endpoint string
}

// HasStaticCredentials reports whether explicit keys were supplied.
func (s Settings) HasStaticCredentials() bool {
	return s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// LoadConfig resolves the AWS configuration. Without explicit keys
// credentials come from the default provider chain; an empty region defers
// to AWS_REGION and the shared config files.
func LoadConfig(ctx context.Context, s Settings) (aws.Config, error) {
	var opts []func(*awsConfig.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, awsConfig.WithRegion(s.Region))
	}
	if s.HasStaticCredentials() {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, s.SessionToken)))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.ConfigError("failed to load AWS config").WithContext("cause", err.Error())
	}
	if s.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(s.Endpoint)
	}
	return cfg, nil
}
