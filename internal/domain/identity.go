package domain

import (
	"net/url"
	"strings"
)

// Identity is a registered user as stored in the shared "users" collection.
// The stored document additionally carries a plaintext password field; that
// field never leaves the store layer through this type.
type Identity struct {
	Username      string   `json:"username"`
	Avatar        string   `json:"avatar"`
	CreatedAt     int64    `json:"createdAt"`
	SavedContacts []string `json:"savedContacts"`
}

// NormalizeUsername lowercases and trims a handle. Every lookup and every
// stored key goes through this, so "Bob " and "bob" are the same identity.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// PlaceholderAvatar builds the generated avatar URL used when registration
// supplies no avatar.
func PlaceholderAvatar(username string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(username) + "&background=random"
}

// HasContact reports whether peer is in the identity's saved set.
func (i Identity) HasContact(peer string) bool {
	for _, c := range i.SavedContacts {
		if c == peer {
			return true
		}
	}
	return false
}
