package models

import "gorm.io/datatypes"

// The records below are owned by the account/client/user directory. This
// service only reads them.

// UserProfile is the requesting user as shown on cover and conclusion slides.
type UserProfile struct {
	Base
	UserID   string `json:"user_id" gorm:"uniqueIndex;not null"`
	Name     string `json:"name"`
	Company  string `json:"company"`
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url"`
}

// Account is an advertising account the user has named explicitly.
type Account struct {
	Base
	UserID    string `json:"user_id" gorm:"index:idx_accounts_user_account;not null"`
	AccountID string `json:"account_id" gorm:"index:idx_accounts_user_account;not null"`
	Name      string `json:"name"`
}

// IntegrationAccount is an entry of the account list an ads integration reports.
type IntegrationAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Integration struct {
	Base
	UserID   string                                  `json:"user_id" gorm:"index;not null"`
	Provider string                                  `json:"provider"`
	Accounts datatypes.JSONSlice[IntegrationAccount] `json:"accounts"`
}

type Campaign struct {
	Base
	UserID     string `json:"user_id" gorm:"index;not null"`
	AccountID  string `json:"account_id" gorm:"index"`
	CampaignID string `json:"campaign_id" gorm:"index"`
	Name       string `json:"name"`
}

// Client is the end customer an account's reports are prepared for.
type Client struct {
	Base
	UserID    string `json:"user_id" gorm:"index;not null"`
	AccountID string `json:"account_id" gorm:"index"`
	Name      string `json:"name"`
	LogoURL   string `json:"logo_url"`
}
