package account

import "time"

// Account is the stored identity record. PasswordHash and RefreshToken never
// leave this package except inside an Account; use Identity() before handing
// the record to a response.
type Account struct {
	ID               string
	Username         string
	Email            string
	DisplayName      string
	PasswordHash     string
	RefreshToken     *string
	RefreshExpiresAt *time.Time
	AvatarURL        *string
	CoverImageURL    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Identity is the credential-stripped projection of an Account.
type Identity struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	AvatarURL     *string   `json:"avatar"`
	CoverImageURL *string   `json:"coverImage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (a Account) Identity() Identity {
	return Identity{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		AvatarURL:     a.AvatarURL,
		CoverImageURL: a.CoverImageURL,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}
