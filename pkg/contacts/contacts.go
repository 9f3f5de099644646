// Package contacts holds the one-shot utilities around contact exchange:
// phone-number hashing for privacy-preserving contact discovery and the QR
// payload format two devices swap to add each other.
package contacts

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	chatsync_errors "chatsync/pkg/errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for phone hashing. Interactive-grade: discovery hashes a
// whole address book in one batch.
const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// HashPhone derives the discovery hash uploaded instead of the raw number.
// The number is normalized first so formatting differences hash identically;
// salt is the service-wide discovery salt, not per-user.
func HashPhone(number string, salt []byte) (string, error) {
	normalized := NormalizePhone(number)
	if normalized == "" {
		return "", chatsync_errors.ErrInvalidInput
	}
	key, err := scrypt.Key([]byte(normalized), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}

// NormalizePhone strips everything but digits and a leading plus.
func NormalizePhone(number string) string {
	var b strings.Builder
	for i, r := range number {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// QRPayload is what one device encodes into a contact QR code.
type QRPayload struct {
	Version     int       `json:"v"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	PhoneHash   string    `json:"phone_hash,omitempty"`
}

// EncodeQR serializes a payload into the string a QR library renders.
func EncodeQR(p QRPayload) (string, error) {
	if p.UserID == uuid.Nil {
		return "", chatsync_errors.ErrInvalidInput
	}
	p.Version = 1
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return "chatsync://contact/" + base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeQR parses a scanned contact code.
func DecodeQR(code string) (QRPayload, error) {
	const prefix = "chatsync://contact/"
	if !strings.HasPrefix(code, prefix) {
		return QRPayload{}, chatsync_errors.ErrInvalidInput
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(code, prefix))
	if err != nil {
		return QRPayload{}, chatsync_errors.ErrInvalidInput
	}
	var p QRPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return QRPayload{}, chatsync_errors.ErrInvalidInput
	}
	if p.Version != 1 || p.UserID == uuid.Nil {
		return QRPayload{}, chatsync_errors.ErrInvalidInput
	}
	return p, nil
}
