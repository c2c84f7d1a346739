package utils

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// GravatarURL builds the Gravatar image URL for an email address.  The hash
// is computed over the trimmed, lowercased address as Gravatar requires.
func GravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?d=identicon"
}

// Gravatar returns the avatar URL for an email after confirming the image
// host answers for it.  This is best-effort enrichment at signup: any
// failure returns an empty string and the account is created without an
// avatar.
func Gravatar(email string) string {
	url := GravatarURL(email)
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Head(url)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	return url
}
