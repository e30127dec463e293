package bricklink

// PriceGuide is the typed aggregate returned for one set number. When the
// request was region-filtered, the per-listing detail is suppressed by the
// upstream and Detail is empty.
type PriceGuide struct {
	SetNumber    string
	Condition    string
	CurrencyCode string
	MinPrice     float64
	AvgPrice     float64
	MaxPrice     float64
	QtyAvgPrice  float64
	LotCount     int
	TotalQty     int
	Detail       []Listing
}

// Listing is one lot inside the global price guide detail.
type Listing struct {
	Quantity          int
	UnitPrice         float64
	SellerCountryCode string
	ShippingAvailable bool
}

// CatalogItem is a minimal catalog lookup result used for mapping
// verification.
type CatalogItem struct {
	SetNumber string
	Name      string
	Year      int
}

// BrickLink wraps every response in a meta envelope; errors are reported
// via meta.code even on HTTP 200.
type apiEnvelope[T any] struct {
	Meta struct {
		Code        int    `json:"code"`
		Message     string `json:"message"`
		Description string `json:"description"`
	} `json:"meta"`
	Data T `json:"data"`
}

type priceGuideData struct {
	Item struct {
		No   string `json:"no"`
		Type string `json:"type"`
	} `json:"item"`
	NewOrUsed     string `json:"new_or_used"`
	CurrencyCode  string `json:"currency_code"`
	MinPrice      string `json:"min_price"`
	MaxPrice      string `json:"max_price"`
	AvgPrice      string `json:"avg_price"`
	QtyAvgPrice   string `json:"qty_avg_price"`
	UnitQuantity  int    `json:"unit_quantity"`
	TotalQuantity int    `json:"total_quantity"`
	PriceDetail   []struct {
		Quantity          int    `json:"quantity"`
		UnitPrice         string `json:"unit_price"`
		SellerCountryCode string `json:"seller_country_code"`
		ShippingAvailable bool   `json:"shipping_available"`
	} `json:"price_detail"`
}

type catalogItemData struct {
	No           string `json:"no"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	YearReleased int    `json:"year_released"`
}
