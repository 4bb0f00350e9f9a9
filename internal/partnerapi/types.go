package partnerapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// The partner API is loose with JSON number types: cursors and ids arrive as
// numbers or quoted strings depending on endpoint version. These wrappers
// accept both.

// Uint64Flex is a uint64 that unmarshals from a JSON number or string.
type Uint64Flex uint64

func (u *Uint64Flex) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q: %w", data, err)
	}
	*u = Uint64Flex(v)
	return nil
}

// Int64Flex is an int64 that unmarshals from a JSON number or string.
type Int64Flex int64

func (i *Int64Flex) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q: %w", data, err)
	}
	*i = Int64Flex(v)
	return nil
}

// ChangedDatesResult is the parsed GetChangedDatesForPartner response.
type ChangedDatesResult struct {
	Dates         []string
	Highwatermark uint64
}

type changedDatesEnvelope struct {
	Response struct {
		Dates         []string   `json:"dates"`
		Highwatermark Uint64Flex `json:"result_highwatermark"`
	} `json:"response"`
}

// SaleItem is one line item from GetDetailedSales. Monetary USD fields are
// decimal strings on the wire; base/sale price are in the listed currency.
type SaleItem struct {
	Date         string `json:"date"`
	LineItemType string `json:"line_item_type"`

	AppID      *Int64Flex `json:"appid,omitempty"`
	PackageID  *Int64Flex `json:"packageid,omitempty"`
	BundleID   *Int64Flex `json:"bundleid,omitempty"`
	PartnerID  *Int64Flex `json:"partnerid,omitempty"`
	GameItemID *Int64Flex `json:"game_item_id,omitempty"`

	CountryCode string `json:"country_code"`
	Platform    string `json:"platform"`
	Currency    string `json:"currency"`

	BasePrice       string `json:"base_price"`
	SalePrice       string `json:"sale_price"`
	AvgSalePriceUSD string `json:"avg_sale_price_usd"`
	GrossSalesUSD   string `json:"gross_sales_usd"`
	GrossReturnsUSD string `json:"gross_returns_usd"`
	NetSalesUSD     string `json:"net_sales_usd"`
	NetTaxUSD       string `json:"net_tax_usd"`

	GrossUnitsSold      int64 `json:"gross_units_sold"`
	GrossUnitsReturned  int64 `json:"gross_units_returned"`
	GrossUnitsActivated int64 `json:"gross_units_activated"`
	NetUnitsSold        int64 `json:"net_units_sold"`

	DiscountID         *Int64Flex `json:"discount_id,omitempty"`
	DiscountPercentage *Int64Flex `json:"discount_percentage,omitempty"`
}

// Reference entities riding alongside the results array.
type AppRef struct {
	ID   Int64Flex `json:"appid"`
	Name string    `json:"name"`
}

type PackageRef struct {
	ID   Int64Flex `json:"packageid"`
	Name string    `json:"name"`
}

type BundleRef struct {
	ID   Int64Flex `json:"bundleid"`
	Name string    `json:"name"`
}

type PartnerRef struct {
	ID   Int64Flex `json:"partnerid"`
	Name string    `json:"name"`
}

type GameItemRef struct {
	ID   Int64Flex `json:"game_item_id"`
	Name string    `json:"name"`
}

type CountryRef struct {
	Code   string `json:"country_code"`
	Name   string `json:"country"`
	Region string `json:"region"`
}

type DiscountRef struct {
	ID         Int64Flex  `json:"discount_id"`
	Name       string     `json:"description"`
	Percentage *Int64Flex `json:"percentage,omitempty"`
}

// SalesPage is one parsed GetDetailedSales page.
type SalesPage struct {
	Results []SaleItem `json:"results"`
	MaxID   Uint64Flex `json:"max_id"`

	Apps      []AppRef      `json:"app_info,omitempty"`
	Packages  []PackageRef  `json:"package_info,omitempty"`
	Bundles   []BundleRef   `json:"bundle_info,omitempty"`
	Partners  []PartnerRef  `json:"partner_info,omitempty"`
	GameItems []GameItemRef `json:"game_item_info,omitempty"`
	Countries []CountryRef  `json:"country_info,omitempty"`
	Discounts []DiscountRef `json:"combined_discount_info,omitempty"`
}

// HasMore reports whether another page follows. The remote signals the end of
// a date by returning an empty results array or a max_id that stopped
// advancing.
func (p *SalesPage) HasMore(prevCursor uint64) bool {
	return len(p.Results) > 0 && uint64(p.MaxID) > prevCursor
}

type salesEnvelope struct {
	Response SalesPage `json:"response"`
}

func parseChangedDates(data []byte) (*ChangedDatesResult, error) {
	var env changedDatesEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse changed-dates response: %w", err)
	}
	return &ChangedDatesResult{
		Dates:         env.Response.Dates,
		Highwatermark: uint64(env.Response.Highwatermark),
	}, nil
}

func parseSalesPage(data []byte) (*SalesPage, error) {
	var env salesEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse sales response: %w", err)
	}
	return &env.Response, nil
}
