package amazon

// CompetitivePricing is the typed projection of one ASIN's entry in the
// batch pricing response. Raw payload shapes stay inside this package;
// the sync engine only ever sees these structs.
type CompetitivePricing struct {
	ASIN        string   `json:"asin"`
	YourPrice   *float64 `json:"your_price"`
	BuyBoxPrice *float64 `json:"buy_box_price"`
	BuyBoxWon   bool     `json:"buy_box_won"`
	OfferCount  int      `json:"offer_count"`
	WasPrice    *float64 `json:"was_price"`
}

// CatalogDetail carries title, image and rank data for one ASIN.
type CatalogDetail struct {
	ASIN         string `json:"asin"`
	Title        string `json:"title"`
	ImageURL     string `json:"image_url"`
	SalesRank    *int   `json:"sales_rank"`
	RankCategory string `json:"rank_category"`
}

// InventoryItem is one seller listing, including zero-stock listings.
type InventoryItem struct {
	ASIN      string `json:"asin"`
	SellerSKU string `json:"seller_sku"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
}

type pricingResponse struct {
	Payload []struct {
		ASIN    string `json:"ASIN"`
		Status  string `json:"status"`
		Product struct {
			CompetitivePricing struct {
				CompetitivePrices []struct {
					BelongsToRequester bool `json:"belongsToRequester"`
					Price              struct {
						ListingPrice struct {
							Amount float64 `json:"Amount"`
						} `json:"ListingPrice"`
					} `json:"Price"`
				} `json:"CompetitivePrices"`
				NumberOfOfferListings []struct {
					Condition string `json:"condition"`
					Count     int    `json:"Count"`
				} `json:"NumberOfOfferListings"`
			} `json:"CompetitivePricing"`
		} `json:"Product"`
	} `json:"payload"`
}

type catalogResponse struct {
	Items []struct {
		ASIN      string `json:"asin"`
		Summaries []struct {
			ItemName string `json:"itemName"`
		} `json:"summaries"`
		Images []struct {
			Images []struct {
				Link string `json:"link"`
			} `json:"images"`
		} `json:"images"`
		SalesRanks []struct {
			DisplayGroupRanks []struct {
				Title string `json:"title"`
				Rank  int    `json:"rank"`
			} `json:"displayGroupRanks"`
		} `json:"salesRanks"`
	} `json:"items"`
}

type inventoryResponse struct {
	Payload struct {
		InventorySummaries []struct {
			ASIN          string `json:"asin"`
			SellerSKU     string `json:"sellerSku"`
			ProductName   string `json:"productName"`
			TotalQuantity int    `json:"totalQuantity"`
		} `json:"inventorySummaries"`
		NextToken string `json:"nextToken"`
	} `json:"payload"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}
