package secret

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/shineum/enjinmel-relay/internal/email"
)

// AWSConfig selects the Secrets Manager secret holding {"key": ..., "iv": ...}.
type AWSConfig struct {
	SecretID        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// GetSecretValueAPI is the Secrets Manager operation used to load material.
// Used for testing with mock implementations.
type GetSecretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadAWS fetches material from AWS Secrets Manager once and returns it as
// a StaticSource.
func LoadAWS(ctx context.Context, cfg AWSConfig) (StaticSource, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return StaticSource{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return LoadAWSWithClient(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.SecretID)
}

// LoadAWSWithClient is LoadAWS with a caller-supplied client.
func LoadAWSWithClient(ctx context.Context, client GetSecretValueAPI, secretID string) (StaticSource, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return StaticSource{}, email.Wrap(email.CodeMissingSecret, "Unable to load encryption secrets from AWS Secrets Manager.", err)
	}

	raw := aws.ToString(out.SecretString)
	if raw == "" && len(out.SecretBinary) > 0 {
		raw = string(out.SecretBinary)
	}

	var m Material
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return StaticSource{}, email.Wrap(email.CodeInvalidSecret, "AWS secret is not a {\"key\",\"iv\"} JSON object.", err)
	}

	return StaticSource{Key: &m.Key, IV: &m.IV}, nil
}
