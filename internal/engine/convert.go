package engine

import (
	"github.com/salewatch/salewatch/internal/partnerapi"
	"github.com/salewatch/salewatch/internal/types"
)

func int64Ptr(v *partnerapi.Int64Flex) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

// recordFromItem maps one wire line item to a sales record. Revenue fields
// that fail to parse become zero; price fields that fail to parse stay NULL.
func recordFromItem(apiKeyID, date string, item *partnerapi.SaleItem) *types.SalesRecord {
	itemDate := item.Date
	if itemDate == "" {
		itemDate = date
	}
	return &types.SalesRecord{
		APIKeyID:     apiKeyID,
		Date:         itemDate,
		LineItemType: item.LineItemType,

		AppID:      int64Ptr(item.AppID),
		PackageID:  int64Ptr(item.PackageID),
		BundleID:   int64Ptr(item.BundleID),
		PartnerID:  int64Ptr(item.PartnerID),
		GameItemID: int64Ptr(item.GameItemID),

		CountryCode: item.CountryCode,
		Platform:    item.Platform,
		Currency:    item.Currency,

		BasePriceCents:  partnerapi.PriceCents(item.BasePrice),
		SalePriceCents:  partnerapi.PriceCents(item.SalePrice),
		AvgSalePriceUSD: partnerapi.RevenueCents(item.AvgSalePriceUSD),
		GrossSalesUSD:   partnerapi.RevenueCents(item.GrossSalesUSD),
		GrossReturnsUSD: partnerapi.RevenueCents(item.GrossReturnsUSD),
		NetSalesUSD:     partnerapi.RevenueCents(item.NetSalesUSD),
		NetTaxUSD:       partnerapi.RevenueCents(item.NetTaxUSD),

		GrossUnitsSold:      item.GrossUnitsSold,
		GrossUnitsReturned:  item.GrossUnitsReturned,
		GrossUnitsActivated: item.GrossUnitsActivated,
		NetUnitsSold:        item.NetUnitsSold,

		DiscountID:         int64Ptr(item.DiscountID),
		DiscountPercentage: int64Ptr(item.DiscountPercentage),
	}
}

// lookupsFromPage collects the reference arrays riding on one sales page.
func lookupsFromPage(page *partnerapi.SalesPage) *types.LookupSet {
	set := types.NewLookupSet()
	for _, a := range page.Apps {
		set.Apps[int64(a.ID)] = a.Name
	}
	for _, p := range page.Packages {
		set.Packages[int64(p.ID)] = p.Name
	}
	for _, b := range page.Bundles {
		set.Bundles[int64(b.ID)] = b.Name
	}
	for _, p := range page.Partners {
		set.Partners[int64(p.ID)] = p.Name
	}
	for _, g := range page.GameItems {
		set.GameItems[int64(g.ID)] = g.Name
	}
	for _, c := range page.Countries {
		if c.Code == "" {
			continue
		}
		set.Countries[c.Code] = types.Country{Code: c.Code, Name: c.Name, Region: c.Region}
	}
	for _, d := range page.Discounts {
		set.Discounts[int64(d.ID)] = types.Discount{
			ID:         int64(d.ID),
			Name:       d.Name,
			Percentage: int64Ptr(d.Percentage),
		}
	}
	return set
}
