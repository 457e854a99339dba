// Package directory reads account, client, campaign and user records owned by
// other services. Lookups that find nothing return nil or "" with a nil error.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/reportengine/internal/models"
	"gorm.io/gorm"
)

type Directory struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// AccountName resolves a display name for accountID: first from the user's
// named accounts, then from the account lists of the user's integrations.
// It returns "" when neither knows the account.
func (d *Directory) AccountName(ctx context.Context, userID, accountID string) (string, error) {
	var account models.Account
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND account_id = ?", userID, accountID).
		First(&account).Error
	switch {
	case err == nil && account.Name != "":
		return account.Name, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return "", fmt.Errorf("failed to fetch account: %w", err)
	}

	var integrations []models.Integration
	if err := d.db.WithContext(ctx).Where("user_id = ?", userID).Find(&integrations).Error; err != nil {
		return "", fmt.Errorf("failed to fetch integrations: %w", err)
	}
	for _, integration := range integrations {
		for _, a := range integration.Accounts {
			if a.ID == accountID && a.Name != "" {
				return a.Name, nil
			}
		}
	}
	return "", nil
}

// CampaignNames returns the names of the known campaigns among ids, in ids order.
func (d *Directory) CampaignNames(ctx context.Context, userID, accountID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var campaigns []models.Campaign
	if err := d.db.WithContext(ctx).
		Where("user_id = ? AND account_id = ? AND campaign_id IN ?", userID, accountID, ids).
		Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch campaigns: %w", err)
	}

	byID := make(map[string]string, len(campaigns))
	for _, c := range campaigns {
		byID[c.CampaignID] = c.Name
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (d *Directory) UserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := d.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	return &profile, nil
}

// Client returns the user's client record attached to accountID.
func (d *Directory) Client(ctx context.Context, userID, accountID string) (*models.Client, error) {
	var client models.Client
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND account_id = ?", userID, accountID).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	return &client, nil
}
