package sqs

import (
	"context"
	"encoding/json"
	"fmt"

	awssdkcreds "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vaultapi "github.com/hashicorp/vault/api"

	"go.sqslistener.dev/internal/common/logging"
)

// CredentialSource is an optional capability for refreshing the AWS
// credentials used to talk to SQS from an external secret store,
// mirroring the validator's "discovered once, lazily, absent is fine"
// shape (spec §4.3) rather than being baked into Config at compile
// time. Exactly one of SecretsManagerSource or VaultSource is normally
// configured; both satisfy this interface so callers can swap without
// touching the listener container.
type CredentialSource interface {
	// Credentials returns a fresh access key / secret key pair.
	Credentials(ctx context.Context) (accessKeyID, secretAccessKey string, err error)
}

// SecretsManagerSource fetches static AWS credentials from a Secrets
// Manager secret shaped as {"access_key_id": "...", "secret_access_key": "..."}.
type SecretsManagerSource struct {
	client   *secretsmanager.Client
	secretID string
}

func NewSecretsManagerSource(client *secretsmanager.Client, secretID string) *SecretsManagerSource {
	return &SecretsManagerSource{client: client, secretID: secretID}
}

func (s *SecretsManagerSource) Credentials(ctx context.Context) (string, string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: awssdkcreds.String(s.secretID),
	})
	if err != nil {
		return "", "", fmt.Errorf("fetch secret %q: %w", s.secretID, err)
	}
	return parseCredentialSecret(awssdkcreds.ToString(out.SecretString))
}

// VaultSource reads dynamic AWS credentials from Vault's AWS secrets
// engine at the given path (e.g. "aws/creds/sqs-consumer").
type VaultSource struct {
	client *vaultapi.Client
	path   string
}

func NewVaultSource(client *vaultapi.Client, path string) *VaultSource {
	return &VaultSource{client: client, path: path}
}

func (v *VaultSource) Credentials(ctx context.Context) (string, string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return "", "", fmt.Errorf("read vault secret %q: %w", v.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", "", fmt.Errorf("vault secret %q is empty", v.path)
	}

	accessKey, _ := secret.Data["access_key"].(string)
	secretKey, _ := secret.Data["secret_key"].(string)
	if accessKey == "" || secretKey == "" {
		return "", "", fmt.Errorf("vault secret %q missing access_key/secret_key", v.path)
	}
	return accessKey, secretKey, nil
}

// WithCredentialSource refreshes cfg's static credentials from src
// once before building the Client, logging and falling back to the
// default provider chain on failure (fail-open, same policy as the
// validator's optional-capability discovery in spec §4.3).
func WithCredentialSource(ctx context.Context, cfg Config, src CredentialSource, logger logging.Logger) Config {
	if src == nil {
		return cfg
	}

	accessKey, secretKey, err := src.Credentials(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("credential source unavailable, falling back to default AWS credential chain")
		return cfg
	}

	cfg.AccessKeyID = accessKey
	cfg.SecretAccessKey = secretKey
	return cfg
}

func parseCredentialSecret(raw string) (string, string, error) {
	var parsed struct {
		AccessKeyID     string `json:"access_key_id"`
		SecretAccessKey string `json:"secret_access_key"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", "", fmt.Errorf("parse credential secret: %w", err)
	}
	if parsed.AccessKeyID == "" || parsed.SecretAccessKey == "" {
		return "", "", fmt.Errorf("credential secret missing access_key_id/secret_access_key")
	}
	return parsed.AccessKeyID, parsed.SecretAccessKey, nil
}
