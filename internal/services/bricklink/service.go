package bricklink

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"brick-trader/internal/services/upstream"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.bricklink.com/api/store/v1"

// Credentials holds the single-legged OAuth material for the store API.
type Credentials struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	Token          string `json:"token"`
	TokenSecret    string `json:"token_secret"`
}

// PriceGuideOptions narrows a price guide request. Region empty means the
// global guide, which is the only form that includes per-listing detail.
type PriceGuideOptions struct {
	Condition string // "N" or "U"
	Region    string // two-letter country code, e.g. "UK"
	Currency  string // ISO currency code, e.g. "GBP"
}

// Service wraps the BrickLink store API endpoints used by the buy-side
// sync: price guides and catalog item lookups.
type Service struct {
	client  *resty.Client
	signer  oauthSigner
	baseURL string
}

func NewService(creds Credentials) *Service {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &Service{
		client:  client,
		baseURL: defaultBaseURL,
		signer: oauthSigner{
			consumerKey:    creds.ConsumerKey,
			consumerSecret: creds.ConsumerSecret,
			token:          creds.Token,
			tokenSecret:    creds.TokenSecret,
		},
	}
}

// SetBaseURL overrides the API endpoint, used by tests.
func (s *Service) SetBaseURL(url string) {
	s.baseURL = url
}

// GetPriceGuide fetches current-stock pricing for one set number. With a
// region the aggregates are restricted to that country but the upstream
// suppresses listing detail; without one the detail comes back at the cost
// of global aggregates. The sync engine issues both calls and merges.
func (s *Service) GetPriceGuide(ctx context.Context, setNumber string, opts PriceGuideOptions) (*PriceGuide, error) {
	if s.signer.consumerKey == "" || s.signer.token == "" {
		return nil, &upstream.AuthError{Upstream: "bricklink", Reason: "missing OAuth credentials"}
	}

	query := url.Values{}
	query.Set("guide_type", "stock")
	query.Set("new_or_used", opts.Condition)
	if opts.Currency != "" {
		query.Set("currency_code", opts.Currency)
	}
	if opts.Region != "" {
		query.Set("country_code", opts.Region)
	}

	endpoint := fmt.Sprintf("%s/items/SET/%s/price", s.baseURL, url.PathEscape(setNumber))

	var body apiEnvelope[priceGuideData]
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", s.signer.authorizationHeader("GET", endpoint, query)).
		SetQueryParamsFromValues(query).
		SetResult(&body).
		Get(endpoint)
	if err != nil {
		return nil, &upstream.TransientError{Upstream: "bricklink", Err: err}
	}
	if err := s.classify(resp.StatusCode(), body.Meta.Code); err != nil {
		return nil, err
	}

	guide := &PriceGuide{
		SetNumber:    body.Data.Item.No,
		Condition:    body.Data.NewOrUsed,
		CurrencyCode: body.Data.CurrencyCode,
		MinPrice:     parsePrice(body.Data.MinPrice),
		AvgPrice:     parsePrice(body.Data.AvgPrice),
		MaxPrice:     parsePrice(body.Data.MaxPrice),
		QtyAvgPrice:  parsePrice(body.Data.QtyAvgPrice),
		LotCount:     body.Data.UnitQuantity,
		TotalQty:     body.Data.TotalQuantity,
	}
	if guide.SetNumber == "" {
		guide.SetNumber = setNumber
	}
	for _, lot := range body.Data.PriceDetail {
		guide.Detail = append(guide.Detail, Listing{
			Quantity:          lot.Quantity,
			UnitPrice:         parsePrice(lot.UnitPrice),
			SellerCountryCode: lot.SellerCountryCode,
			ShippingAvailable: lot.ShippingAvailable,
		})
	}
	return guide, nil
}

// GetCatalogItem verifies a set number exists in the catalog. Returns
// upstream.ErrNotFound for unknown or withdrawn numbers.
func (s *Service) GetCatalogItem(ctx context.Context, setNumber string) (*CatalogItem, error) {
	if s.signer.consumerKey == "" || s.signer.token == "" {
		return nil, &upstream.AuthError{Upstream: "bricklink", Reason: "missing OAuth credentials"}
	}

	endpoint := fmt.Sprintf("%s/items/SET/%s", s.baseURL, url.PathEscape(setNumber))

	var body apiEnvelope[catalogItemData]
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", s.signer.authorizationHeader("GET", endpoint, url.Values{})).
		SetResult(&body).
		Get(endpoint)
	if err != nil {
		return nil, &upstream.TransientError{Upstream: "bricklink", Err: err}
	}
	if err := s.classify(resp.StatusCode(), body.Meta.Code); err != nil {
		return nil, err
	}

	return &CatalogItem{
		SetNumber: body.Data.No,
		Name:      body.Data.Name,
		Year:      body.Data.YearReleased,
	}, nil
}

// classify folds BrickLink's envelope code into the HTTP status. The API
// reports 404 and quota errors inside meta on an HTTP 200 response.
func (s *Service) classify(httpCode, metaCode int) error {
	if err := upstream.ClassifyStatus("bricklink", httpCode); err != nil {
		return err
	}
	if metaCode != 0 && (metaCode < 200 || metaCode >= 300) {
		return upstream.ClassifyStatus("bricklink", metaCode)
	}
	return nil
}

// parsePrice converts BrickLink's string-encoded decimals; malformed or
// empty values become 0.
func parsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
