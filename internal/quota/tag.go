package quota

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

const (
	tagDomain = "vidloader-quota-v1"
	tagSalt   = "vidloader-quota-salt-v1"
	tagInfo   = "quota-integrity-tag"
)

// Tagger computes and checks quota integrity tags.
type Tagger struct {
	key []byte
}

// NewTagger derives the tag key from the machine fingerprint.
func NewTagger(fingerprint string) (*Tagger, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("derive quota key: empty fingerprint")
	}

	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(fingerprint), []byte(tagSalt), []byte(tagInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive quota key: %w", err)
	}
	return &Tagger{key: key}, nil
}

func (t *Tagger) mac(date string, count int) []byte {
	h := hmac.New(sha256.New, t.key)
	h.Write([]byte(tagDomain + "|" + date + "|" + strconv.Itoa(count)))
	return h.Sum(nil)
}

// Tag returns the base64 tag for date and count
func (t *Tagger) Tag(date string, count int) string {
	return base64.StdEncoding.EncodeToString(t.mac(date, count))
}

// Verify checks the tag of rec in constant time
func (t *Tagger) Verify(rec Record) bool {
	got, err := base64.StdEncoding.DecodeString(rec.Tag)
	if err != nil {
		return false
	}
	return hmac.Equal(got, t.mac(rec.Date, rec.Count))
}
