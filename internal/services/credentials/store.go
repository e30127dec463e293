package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"brick-trader/internal/config"
	"brick-trader/internal/models"
	"brick-trader/internal/services/amazon"
	"brick-trader/internal/services/bricklink"
	"brick-trader/internal/services/upstream"

	"gorm.io/gorm"
)

// Platform identifiers in the credential table.
const (
	PlatformAmazon    = "amazon"
	PlatformBricklink = "bricklink"
)

// Store resolves opaque per-platform credentials. A database row takes
// precedence; environment configuration is the fallback so a fresh install
// works before anything is stored.
type Store struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewStore(db *gorm.DB, cfg *config.Config) *Store {
	return &Store{db: db, cfg: cfg}
}

// Amazon returns SP-API credentials or an AuthError when none are
// configured anywhere.
func (s *Store) Amazon() (amazon.Credentials, error) {
	var creds amazon.Credentials
	if ok, err := s.load(PlatformAmazon, &creds); err != nil {
		return creds, err
	} else if ok {
		return creds, nil
	}

	creds = amazon.Credentials{
		RefreshToken: s.cfg.AmazonRefreshToken,
		ClientID:     s.cfg.AmazonClientID,
		ClientSecret: s.cfg.AmazonClientSecret,
	}
	if creds.RefreshToken == "" || creds.ClientID == "" {
		return creds, &upstream.AuthError{Upstream: PlatformAmazon, Reason: "no credentials configured"}
	}
	return creds, nil
}

// Bricklink returns store-API OAuth credentials or an AuthError.
func (s *Store) Bricklink() (bricklink.Credentials, error) {
	var creds bricklink.Credentials
	if ok, err := s.load(PlatformBricklink, &creds); err != nil {
		return creds, err
	} else if ok {
		return creds, nil
	}

	creds = bricklink.Credentials{
		ConsumerKey:    s.cfg.BricklinkConsumerKey,
		ConsumerSecret: s.cfg.BricklinkConsumerSecret,
		Token:          s.cfg.BricklinkToken,
		TokenSecret:    s.cfg.BricklinkTokenSecret,
	}
	if creds.ConsumerKey == "" || creds.Token == "" {
		return creds, &upstream.AuthError{Upstream: PlatformBricklink, Reason: "no credentials configured"}
	}
	return creds, nil
}

func (s *Store) load(platform string, out any) (bool, error) {
	var row models.PlatformCredential
	err := s.db.Where("platform = ?", platform).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s credentials: %w", platform, err)
	}
	if err := json.Unmarshal([]byte(row.Payload), out); err != nil {
		return false, &upstream.AuthError{Upstream: platform, Reason: "stored credentials are malformed"}
	}
	return true, nil
}
