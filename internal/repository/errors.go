// Package repository defines error values reused across repositories.
// These sentinels let handlers distinguish failure scenarios and map
// them onto HTTP statuses: ErrEmailExists and ErrDuplicateContact
// become 409 responses, the not-found values become 404.
package repository

import "errors"

// ErrEmailExists is returned when a signup collides with an existing account.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicateContact is returned when a contact write would reuse an email
// or phone already present among the same user's contacts.
var ErrDuplicateContact = errors.New("contact email or phone already exists")

// ErrContactNotFound is returned when a contact does not exist or belongs
// to a different user.
var ErrContactNotFound = errors.New("contact not found")

// ErrUserNotFound is returned when a user lookup finds no row.
var ErrUserNotFound = errors.New("user not found")
