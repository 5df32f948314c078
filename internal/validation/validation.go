package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"furnidesk/internal/constants"
	"furnidesk/internal/errors"
	"furnidesk/internal/models"
)

// ValidatePhoneNumber validates phone number format and length
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "+")
	cleaned = strings.TrimSuffix(cleaned, "@c.us")

	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}
	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}
	return nil
}

// ValidateID validates thread, message and user ids taken from requests.
func ValidateID(id, fieldName string) error {
	if id == "" {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s cannot be empty", fieldName))
	}
	if len(id) > constants.MaxIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, constants.MaxIDLength))
	}
	if strings.ContainsAny(id, "\x00\n\r\t") {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s contains invalid characters", fieldName))
	}
	return nil
}

// ValidateContent checks message text that is already known to be non-blank.
func ValidateContent(content string) error {
	if n := utf8.RuneCountInString(content); n > constants.MaxMessageContentLength {
		return errors.NewValidationError("content",
			fmt.Sprintf("message too long: %d characters (max %d)", n, constants.MaxMessageContentLength))
	}
	if strings.ContainsRune(content, '\x00') {
		return errors.NewValidationError("content", "message contains invalid characters")
	}
	return nil
}

// NormalizeAttachments fills missing types from the file name and validates
// every attachment. The input slice is not modified.
func NormalizeAttachments(attachments []models.Attachment) ([]models.Attachment, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if len(attachments) > constants.MaxAttachmentsPerMessage {
		return nil, errors.NewValidationError("attachments",
			fmt.Sprintf("too many attachments (max %d)", constants.MaxAttachmentsPerMessage))
	}

	out := make([]models.Attachment, len(attachments))
	for i, a := range attachments {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return nil, errors.NewValidationError("attachments", fmt.Sprintf("attachment %d has no name", i+1))
		}
		if a.URL == "" {
			return nil, errors.NewValidationError("attachments", fmt.Sprintf("attachment %s has no url", a.Name))
		}
		if err := validateAttachmentURL(a.URL); err != nil {
			return nil, errors.NewValidationError("attachments", fmt.Sprintf("attachment %s: %v", a.Name, err))
		}
		if a.Type == "" {
			a.Type = AttachmentTypeFor(a.Name)
		}
		if !a.Type.Valid() {
			return nil, errors.NewValidationError("attachments", fmt.Sprintf("unknown attachment type %q", a.Type))
		}
		if a.Size < 0 || a.Size > constants.MaxAttachmentSizeBytes {
			return nil, errors.NewValidationError("attachments",
				fmt.Sprintf("attachment %s size out of range (max %d MB)", a.Name, constants.MaxAttachmentSizeBytes/constants.BytesPerMegabyte))
		}
		out[i] = a
	}
	return out, nil
}

// validateAttachmentURL accepts relative links and absolute http(s) links.
func validateAttachmentURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url")
	}
	if u.Scheme != "" && u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported url scheme %s", u.Scheme)
	}
	if u.Scheme != "" && u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

func fileTypeFor(name string) (constants.FileType, bool) {
	ft, ok := constants.FileTypes[strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")]
	return ft, ok
}

// AttachmentTypeFor infers the attachment category from a file name.
func AttachmentTypeFor(name string) models.AttachmentType {
	if ft, ok := fileTypeFor(name); ok {
		return models.AttachmentType(ft.Kind)
	}
	return models.AttachmentFile
}

// MimeTypeFor returns the MIME type for a file name.
func MimeTypeFor(name string) string {
	if ft, ok := fileTypeFor(name); ok {
		return ft.Mime
	}
	return constants.DefaultMimeType
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}
	return nil
}

// ValidateStringLength validates string length against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	n := utf8.RuneCountInString(value)
	if n < minLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength))
	}
	if n > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}
	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}
	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}
	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}
	if timeoutSec > 3600 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}
	return nil
}
