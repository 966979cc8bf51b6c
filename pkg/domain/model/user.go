package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

// User is the local projection of a provider account. The provider owns the
// truth; this record is kept consistent through webhook reconciliation and
// JIT repair. Records are never hard-deleted: a delete event sets DeletedAt
// and the tombstone is retained for audit and referential integrity.
type User struct {
	SubjectID   types.SubjectID `firestore:"subject_id" json:"subjectId"`
	Email       string          `firestore:"email" json:"email"`
	DisplayName string          `firestore:"display_name" json:"displayName"`
	AvatarURL   string          `firestore:"avatar_url" json:"avatarUrl"`
	CreatedAt   time.Time       `firestore:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `firestore:"updated_at" json:"updatedAt"`
	DeletedAt   *time.Time      `firestore:"deleted_at" json:"deletedAt,omitempty"`
}

// Validate checks if the User is valid
func (u *User) Validate() error {
	if err := u.SubjectID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid user")
	}
	if u.CreatedAt.IsZero() {
		return goerr.New("user created_at is not set", goerr.V("subjectID", u.SubjectID))
	}
	if u.UpdatedAt.IsZero() {
		return goerr.New("user updated_at is not set", goerr.V("subjectID", u.SubjectID))
	}
	return nil
}

// IsDeleted reports whether the record is tombstoned
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// Clone returns a deep copy of the record
func (u *User) Clone() *User {
	copied := *u
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		copied.DeletedAt = &t
	}
	return &copied
}

// Profile carries the mutable account fields as reported by the provider,
// either in a webhook payload or from the profile API.
type Profile struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}
