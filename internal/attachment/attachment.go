// Package attachment validates attachments and encodes them for the
// EnjinMel API.
package attachment

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shineum/enjinmel-relay/internal/email"
)

// MaxBytes is the provider's per-attachment limit (5 MiB).
const MaxBytes = 5242880

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Normalize encodes every attachment, failing on the first one that is
// missing, unreadable or larger than MaxBytes.
func Normalize(list []email.Attachment) ([]email.EncodedAttachment, error) {
	if len(list) == 0 {
		return nil, nil
	}

	out := make([]email.EncodedAttachment, 0, len(list))
	for _, a := range list {
		var (
			enc email.EncodedAttachment
			err error
		)
		if a.InMemory() {
			enc, err = fromMemory(a)
		} else {
			enc, err = fromPath(a.Path)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

func fromMemory(a email.Attachment) (email.EncodedAttachment, error) {
	size := int64(len(a.Data))
	if size > MaxBytes {
		return email.EncodedAttachment{}, tooLarge(a.Name, size)
	}
	return email.EncodedAttachment{
		Filename: SanitizeFilename(a.Name),
		Content:  base64.StdEncoding.EncodeToString(a.Data),
	}, nil
}

func fromPath(path string) (email.EncodedAttachment, error) {
	resolved, err := filepath.Abs(path)
	if err == nil {
		resolved, err = filepath.EvalSymlinks(resolved)
	}
	if err != nil {
		return email.EncodedAttachment{}, &email.Error{
			Code:    email.CodeMissingAttachment,
			Message: fmt.Sprintf("Attachment %s could not be found.", filepath.Base(path)),
			File:    path,
			Err:     err,
		}
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return email.EncodedAttachment{}, &email.Error{
			Code:    email.CodeMissingAttachment,
			Message: fmt.Sprintf("Attachment %s could not be found.", filepath.Base(path)),
			File:    resolved,
			Err:     err,
		}
	}
	if info.Size() > MaxBytes {
		return email.EncodedAttachment{}, tooLarge(resolved, info.Size())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return email.EncodedAttachment{}, &email.Error{
			Code:    email.CodeUnreadableAttachment,
			Message: fmt.Sprintf("Attachment %s could not be read.", filepath.Base(resolved)),
			File:    resolved,
			Err:     err,
		}
	}

	return email.EncodedAttachment{
		Filename: SanitizeFilename(filepath.Base(resolved)),
		Content:  base64.StdEncoding.EncodeToString(data),
	}, nil
}

func tooLarge(file string, size int64) *email.Error {
	return &email.Error{
		Code:    email.CodeAttachmentTooLarge,
		Message: fmt.Sprintf("Attachment %s exceeds the 5 MB limit.", filepath.Base(file)),
		File:    file,
		Size:    size,
	}
}

// SanitizeFilename keeps letters, digits, dots, dashes and underscores.
// Whitespace becomes a dash and anything else is dropped.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Join(strings.Fields(name), "-")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.Trim(name, ".-_")
	if name == "" {
		return "attachment"
	}
	return name
}
