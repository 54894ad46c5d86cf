package secret

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/shineum/enjinmel-relay/internal/email"
)

// Material is the pair of strings the cipher key and legacy IV are derived from.
type Material struct {
	Key string `json:"key"`
	IV  string `json:"iv"`
}

// Source supplies key material.
type Source interface {
	Material() (Material, error)
}

// StaticSource holds externally configured material. A nil field means the
// value was never defined, which is different from an empty one.
type StaticSource struct {
	Key *string
	IV  *string
}

func (s StaticSource) Material() (Material, error) {
	if s.Key == nil || s.IV == nil {
		return Material{}, email.Errorf(email.CodeMissingSecret, "Encryption secrets are not defined.")
	}
	if *s.Key == "" || *s.IV == "" {
		return Material{}, email.Errorf(email.CodeInvalidSecret, "Encryption secrets must not be empty.")
	}
	return Material{Key: *s.Key, IV: *s.IV}, nil
}

// FileSource keeps auto-generated material in a private file. The file is
// created on first use with two random 256-bit values and mode 0600, and is
// only read when a cipher actually needs key material.
type FileSource struct {
	Path string

	mu sync.Mutex
}

func (s *FileSource) Material() (Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Path == "" {
		return Material{}, email.Errorf(email.CodeMissingSecret, "Encryption secrets are not defined.")
	}

	data, err := os.ReadFile(s.Path)
	switch {
	case err == nil:
		var m Material
		if err := json.Unmarshal(data, &m); err != nil {
			return Material{}, email.Wrap(email.CodeInvalidSecret, "Stored encryption secrets are unreadable.", err)
		}
		if m.Key == "" || m.IV == "" {
			return Material{}, email.Errorf(email.CodeInvalidSecret, "Stored encryption secrets are empty.")
		}
		return m, nil
	case errors.Is(err, fs.ErrNotExist):
		return s.generate()
	default:
		return Material{}, email.Wrap(email.CodeInvalidSecret, "Stored encryption secrets are unreadable.", err)
	}
}

func (s *FileSource) generate() (Material, error) {
	key, err := randomHex(32)
	if err != nil {
		return Material{}, err
	}
	iv, err := randomHex(32)
	if err != nil {
		return Material{}, err
	}
	m := Material{Key: key, IV: iv}

	data, err := json.Marshal(m)
	if err != nil {
		return Material{}, email.Wrap(email.CodeKeyGenerationFailed, "Unable to store generated encryption secrets.", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return Material{}, email.Wrap(email.CodeKeyGenerationFailed, "Unable to store generated encryption secrets.", err)
	}
	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Material{}, email.Wrap(email.CodeKeyGenerationFailed, "Unable to store generated encryption secrets.", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return Material{}, email.Wrap(email.CodeKeyGenerationFailed, "Unable to store generated encryption secrets.", err)
	}
	if err := f.Close(); err != nil {
		return Material{}, email.Wrap(email.CodeKeyGenerationFailed, "Unable to store generated encryption secrets.", err)
	}
	return m, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", email.Wrap(email.CodeKeyGenerationFailed, "Unable to generate encryption secrets.", err)
	}
	return hex.EncodeToString(b), nil
}

// Chain tries each source in order and skips those that report
// missing_secret. Any other failure stops the chain.
type Chain []Source

func (c Chain) Material() (Material, error) {
	for _, s := range c {
		m, err := s.Material()
		if email.CodeOf(err) == email.CodeMissingSecret {
			continue
		}
		return m, err
	}
	return Material{}, email.Errorf(email.CodeMissingSecret, "Encryption secrets are not defined.")
}

// String keeps material out of logs.
func (m Material) String() string {
	return fmt.Sprintf("secret.Material{Key: %d bytes, IV: %d bytes}", len(m.Key), len(m.IV))
}
