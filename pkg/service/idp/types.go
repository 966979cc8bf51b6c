package idp

import (
	"strings"

	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

// User is the provider's account representation, as returned by the profile
// API and carried in webhook payloads.
type User struct {
	ID                    string         `json:"id"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	ImageURL              string         `json:"image_url"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	Deleted               bool           `json:"deleted"`
}

// EmailAddress is one of the addresses attached to a provider account
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// SubjectID returns the account's subject ID
func (u *User) SubjectID() types.SubjectID {
	return types.SubjectID(u.ID)
}

// PrimaryEmail returns the account's primary email address, falling back to
// the first listed address when the primary marker is missing
func (u *User) PrimaryEmail() string {
	for _, addr := range u.EmailAddresses {
		if addr.ID == u.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// Profile maps the provider account to the local mutable profile fields
func (u *User) Profile() *model.Profile {
	return &model.Profile{
		Email:       u.PrimaryEmail(),
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		AvatarURL:   u.ImageURL,
	}
}
