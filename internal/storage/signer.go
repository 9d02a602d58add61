package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Default lifetimes for signed URLs. Uploads get the shorter window since
// the caller mints the URL immediately before pushing bytes.
const (
	DefaultUploadTTL   = 30 * time.Minute
	DefaultDownloadTTL = time.Hour
)

var ErrBadSignature = errors.New("bad or expired signature")

// Signer mints and verifies the HMAC signatures carried in upload and
// download URL queries. A signature covers the method, the object name, and
// the expiry, so a URL signed for one object or verb cannot be replayed for
// another.
type Signer struct {
	key []byte
}

func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Enabled reports whether a signing key is configured. Without one, signed
// routes are refused outright.
func (s *Signer) Enabled() bool {
	return len(s.key) > 0
}

// Sign computes the signature for a method/object pair expiring at the given
// time.
func (s *Signer) Sign(method, object string, expires time.Time) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s|%s|%d", method, object, expires.Unix())
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented signature against the expected one in constant
// time. Expired or mismatched signatures both come back as ErrBadSignature;
// callers should not distinguish the two in responses.
func (s *Signer) Verify(method, object string, expires int64, sig string) error {
	if !s.Enabled() {
		return ErrBadSignature
	}
	if time.Now().Unix() > expires {
		return ErrBadSignature
	}
	want := s.Sign(method, object, time.Unix(expires, 0))
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

// SignedURL builds the path-and-query for a signed operation on the given
// route prefix, e.g. SignedURL("PUT", "/v1/uploads", "clip.mp4", ttl) ->
// /v1/uploads/clip.mp4?expires=...&sig=... along with the expiry it encodes.
func (s *Signer) SignedURL(method, route, object string, ttl time.Duration) (string, time.Time) {
	expires := time.Now().Add(ttl)
	sig := s.Sign(method, object, expires)
	return fmt.Sprintf("%s/%s?expires=%d&sig=%s", route, url.PathEscape(object), expires.Unix(), sig), expires
}
