package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/shineum/enjinmel-relay/internal/email"
)

func TestFileSource_GeneratesOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys", "secrets.json")
	src := &FileSource{Path: path}

	first, err := src.Material()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Key) != 64 || len(first.IV) != 64 {
		t.Errorf("material length: got key=%d iv=%d, want 64 hex chars each", len(first.Key), len(first.IV))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode: got %o, want 600", perm)
	}

	second, err := (&FileSource{Path: path}).Material()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Error("material changed between loads")
	}

	// Values encrypted with generated material survive a reload.
	enc, err := New(src).Encrypt("api-key")
	if err != nil {
		t.Fatal(err)
	}
	dec, err := New(&FileSource{Path: path}).Decrypt(enc)
	if err != nil || dec != "api-key" {
		t.Errorf("reload decrypt: got (%q, %v)", dec, err)
	}
}

func TestFileSource_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := (&FileSource{Path: path}).Material()
	if code := email.CodeOf(err); code != email.CodeInvalidSecret {
		t.Errorf("got %q, want %q", code, email.CodeInvalidSecret)
	}
}

func TestChain(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secrets.json")
	m, err := Chain{StaticSource{}, &FileSource{Path: path}}.Material()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Key == "" {
		t.Error("chain did not fall through to the file source")
	}

	m, err = Chain{StaticSource{Key: ptr("k"), IV: ptr("i")}, &FileSource{Path: path}}.Material()
	if err != nil || m.Key != "k" {
		t.Errorf("static source should win: got (%v, %v)", m, err)
	}

	_, err = Chain{StaticSource{Key: ptr(""), IV: ptr("")}, &FileSource{Path: path}}.Material()
	if code := email.CodeOf(err); code != email.CodeInvalidSecret {
		t.Errorf("invalid static source must stop the chain: got %q", code)
	}

	_, err = Chain{StaticSource{}}.Material()
	if code := email.CodeOf(err); code != email.CodeMissingSecret {
		t.Errorf("empty chain: got %q, want %q", code, email.CodeMissingSecret)
	}
}

// mockSecretsClient implements GetSecretValueAPI for testing.
type mockSecretsClient struct {
	out       *secretsmanager.GetSecretValueOutput
	err       error
	lastInput *secretsmanager.GetSecretValueInput
}

func (m *mockSecretsClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.lastInput = params
	return m.out, m.err
}

func TestLoadAWSWithClient(t *testing.T) {
	t.Parallel()

	mock := &mockSecretsClient{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"key":"aws-key","iv":"aws-iv"}`),
	}}

	src, err := LoadAWSWithClient(context.Background(), mock, "enjinmel/relay")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(mock.lastInput.SecretId); got != "enjinmel/relay" {
		t.Errorf("SecretId: got %q, want %q", got, "enjinmel/relay")
	}
	m, err := src.Material()
	if err != nil || m.Key != "aws-key" || m.IV != "aws-iv" {
		t.Errorf("Material: got (%v, %v)", m, err)
	}
}

func TestLoadAWSWithClient_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadAWSWithClient(context.Background(), &mockSecretsClient{err: errors.New("denied")}, "x")
	if code := email.CodeOf(err); code != email.CodeMissingSecret {
		t.Errorf("api error: got %q, want %q", code, email.CodeMissingSecret)
	}

	_, err = LoadAWSWithClient(context.Background(), &mockSecretsClient{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String("plain"),
	}}, "x")
	if code := email.CodeOf(err); code != email.CodeInvalidSecret {
		t.Errorf("bad payload: got %q, want %q", code, email.CodeInvalidSecret)
	}
}
