// Package signing issues and verifies HMAC-signed, time-limited mailbox
// download links.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrInvalidSignature is returned for tampered or malformed links.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrExpired is returned for links past their expiry.
	ErrExpired = errors.New("link expired")
)

// Download identifies the mailbox item a link grants access to.
type Download struct {
	ItemID   string
	ClientID string
	Expires  time.Time
}

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for d.
func (s *Signer) Sign(d Download) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%s:%d", d.ItemID, d.ClientID, d.Expires.Unix())
	return hex.EncodeToString(mac.Sum(nil))
}

// Query encodes d and its signature as URL query parameters.
func (s *Signer) Query(d Download) url.Values {
	return url.Values{
		"item":    {d.ItemID},
		"client":  {d.ClientID},
		"expires": {strconv.FormatInt(d.Expires.Unix(), 10)},
		"sig":     {s.Sign(d)},
	}
}

// Verify parses a link's query and checks its signature and expiry.
func (s *Signer) Verify(q url.Values) (Download, error) {
	exp, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil || q.Get("item") == "" {
		return Download{}, ErrInvalidSignature
	}
	d := Download{ItemID: q.Get("item"), ClientID: q.Get("client"), Expires: time.Unix(exp, 0)}
	// hmac.Equal compares in constant time.
	if !hmac.Equal([]byte(s.Sign(d)), []byte(q.Get("sig"))) {
		return Download{}, ErrInvalidSignature
	}
	if !s.now().Before(d.Expires) {
		return Download{}, ErrExpired
	}
	return d, nil
}
