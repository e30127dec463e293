package amazon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"brick-trader/internal/services/upstream"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://sellingpartnerapi-eu.amazon.com"
	lwaTokenURL    = "https://api.amazon.com/auth/o2/token"
)

// Credentials is the opaque material needed to talk to SP-API.
type Credentials struct {
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Service wraps the Amazon SP-API endpoints the sync engine needs:
// batch competitive pricing, catalog detail and seller inventory.
type Service struct {
	client      *resty.Client
	creds       Credentials
	marketplace string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewService(creds Credentials, marketplace string) *Service {
	client := resty.New()
	client.SetBaseURL(defaultBaseURL)
	client.SetTimeout(30 * time.Second)

	return &Service{
		client:      client,
		creds:       creds,
		marketplace: marketplace,
	}
}

// SetBaseURL overrides the SP-API endpoint, used by tests.
func (s *Service) SetBaseURL(url string) {
	s.client.SetBaseURL(url)
}

// GetCompetitivePricing fetches buy-box and own-offer pricing for up to 20
// ASINs in one call.
func (s *Service) GetCompetitivePricing(ctx context.Context, asins []string) ([]CompetitivePricing, error) {
	token, err := s.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body pricingResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("x-amz-access-token", token).
		SetQueryParam("MarketplaceId", s.marketplace).
		SetQueryParam("Asins", strings.Join(asins, ",")).
		SetQueryParam("ItemType", "Asin").
		SetResult(&body).
		Get("/products/pricing/v0/competitivePrice")
	if err != nil {
		return nil, &upstream.TransientError{Upstream: "amazon", Err: err}
	}
	if err := upstream.ClassifyStatus("amazon", resp.StatusCode()); err != nil {
		return nil, err
	}

	results := make([]CompetitivePricing, 0, len(body.Payload))
	for _, item := range body.Payload {
		if item.Status != "" && item.Status != "Success" {
			continue
		}
		cp := CompetitivePricing{ASIN: item.ASIN}
		for _, price := range item.Product.CompetitivePricing.CompetitivePrices {
			amount := price.Price.ListingPrice.Amount
			if amount <= 0 {
				continue
			}
			v := amount
			if price.BelongsToRequester {
				cp.YourPrice = &v
				cp.BuyBoxWon = true
			} else if cp.BuyBoxPrice == nil {
				cp.BuyBoxPrice = &v
			}
		}
		for _, listing := range item.Product.CompetitivePricing.NumberOfOfferListings {
			if listing.Condition == "New" || listing.Condition == "Any" {
				cp.OfferCount = listing.Count
				break
			}
		}
		results = append(results, cp)
	}
	return results, nil
}

// GetCatalogDetail fetches title, image and sales rank for up to 20 ASINs.
func (s *Service) GetCatalogDetail(ctx context.Context, asins []string) ([]CatalogDetail, error) {
	token, err := s.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body catalogResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("x-amz-access-token", token).
		SetQueryParam("marketplaceIds", s.marketplace).
		SetQueryParam("identifiersType", "ASIN").
		SetQueryParam("identifiers", strings.Join(asins, ",")).
		SetQueryParam("includedData", "summaries,images,salesRanks").
		SetResult(&body).
		Get("/catalog/2022-04-01/items")
	if err != nil {
		return nil, &upstream.TransientError{Upstream: "amazon", Err: err}
	}
	if err := upstream.ClassifyStatus("amazon", resp.StatusCode()); err != nil {
		return nil, err
	}

	results := make([]CatalogDetail, 0, len(body.Items))
	for _, item := range body.Items {
		detail := CatalogDetail{ASIN: item.ASIN}
		if len(item.Summaries) > 0 {
			detail.Title = item.Summaries[0].ItemName
		}
		if len(item.Images) > 0 && len(item.Images[0].Images) > 0 {
			detail.ImageURL = item.Images[0].Images[0].Link
		}
		if len(item.SalesRanks) > 0 && len(item.SalesRanks[0].DisplayGroupRanks) > 0 {
			rank := item.SalesRanks[0].DisplayGroupRanks[0]
			r := rank.Rank
			detail.SalesRank = &r
			detail.RankCategory = rank.Title
		}
		results = append(results, detail)
	}
	return results, nil
}

// GetInventory pages through the seller's FBA inventory, including
// zero-stock listings.
func (s *Service) GetInventory(ctx context.Context) ([]InventoryItem, error) {
	token, err := s.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var items []InventoryItem
	nextToken := ""
	for {
		var body inventoryResponse
		req := s.client.R().
			SetContext(ctx).
			SetHeader("x-amz-access-token", token).
			SetQueryParam("marketplaceIds", s.marketplace).
			SetQueryParam("granularityType", "Marketplace").
			SetQueryParam("granularityId", s.marketplace).
			SetQueryParam("details", "false").
			SetResult(&body)
		if nextToken != "" {
			req.SetQueryParam("nextToken", nextToken)
		}
		resp, err := req.Get("/fba/inventory/v1/summaries")
		if err != nil {
			return nil, &upstream.TransientError{Upstream: "amazon", Err: err}
		}
		if err := upstream.ClassifyStatus("amazon", resp.StatusCode()); err != nil {
			return nil, err
		}

		for _, summary := range body.Payload.InventorySummaries {
			items = append(items, InventoryItem{
				ASIN:      summary.ASIN,
				SellerSKU: summary.SellerSKU,
				Title:     summary.ProductName,
				Quantity:  summary.TotalQuantity,
			})
		}
		nextToken = body.Payload.NextToken
		if nextToken == "" {
			break
		}
	}
	return items, nil
}

// getAccessToken exchanges the LWA refresh token for a short-lived access
// token, cached until shortly before expiry.
func (s *Service) getAccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Now().Before(s.tokenExpiry) {
		return s.accessToken, nil
	}
	if s.creds.RefreshToken == "" || s.creds.ClientID == "" {
		return "", &upstream.AuthError{Upstream: "amazon", Reason: "missing LWA credentials"}
	}

	var body tokenResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": s.creds.RefreshToken,
			"client_id":     s.creds.ClientID,
			"client_secret": s.creds.ClientSecret,
		}).
		SetResult(&body).
		Post(lwaTokenURL)
	if err != nil {
		return "", &upstream.TransientError{Upstream: "amazon", Err: err}
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return "", &upstream.AuthError{Upstream: "amazon", Reason: fmt.Sprintf("token exchange returned %d", resp.StatusCode())}
	}
	if resp.StatusCode() != http.StatusOK {
		return "", &upstream.TransientError{Upstream: "amazon", Err: fmt.Errorf("token exchange returned %d", resp.StatusCode())}
	}

	s.accessToken = body.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return s.accessToken, nil
}

