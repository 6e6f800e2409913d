package models

import "strings"

type RatingValue string

const (
	RatingStrongBuy    RatingValue = "STRONG_BUY"
	RatingBuy          RatingValue = "BUY"
	RatingOutperform   RatingValue = "OUTPERFORM"
	RatingOverweight   RatingValue = "OVERWEIGHT"
	RatingHold         RatingValue = "HOLD"
	RatingNeutral      RatingValue = "NEUTRAL"
	RatingUnderweight  RatingValue = "UNDERWEIGHT"
	RatingUnderperform RatingValue = "UNDERPERFORM"
	RatingSell         RatingValue = "SELL"
	RatingStrongSell   RatingValue = "STRONG_SELL"
)

var ratingValues = map[RatingValue]struct{}{
	RatingStrongBuy: {}, RatingBuy: {}, RatingOutperform: {}, RatingOverweight: {},
	RatingHold: {}, RatingNeutral: {}, RatingUnderweight: {}, RatingUnderperform: {},
	RatingSell: {}, RatingStrongSell: {},
}

func (v RatingValue) Valid() bool {
	_, ok := ratingValues[v]
	return ok
}

// ParseRatingValue accepts loose spellings such as "strong buy" or "Buy".
func ParseRatingValue(s string) (RatingValue, bool) {
	v := RatingValue(strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(s, "-", " ")), "_")))
	return v, v.Valid()
}

type MetricType string

const (
	MetricRevenue         MetricType = "revenue"
	MetricRevenueGrowth   MetricType = "revenue_growth"
	MetricGrossMargin     MetricType = "gross_margin"
	MetricOperatingMargin MetricType = "operating_margin"
	MetricNetMargin       MetricType = "net_margin"
	MetricEPS             MetricType = "eps"
	MetricEBITDA          MetricType = "ebitda"
	MetricNetIncome       MetricType = "net_income"
	MetricFreeCashFlow    MetricType = "free_cash_flow"
	MetricPERatio         MetricType = "pe_ratio"
)

var metricTypes = map[MetricType]struct{}{
	MetricRevenue: {}, MetricRevenueGrowth: {}, MetricGrossMargin: {}, MetricOperatingMargin: {},
	MetricNetMargin: {}, MetricEPS: {}, MetricEBITDA: {}, MetricNetIncome: {},
	MetricFreeCashFlow: {}, MetricPERatio: {},
}

func (m MetricType) Valid() bool {
	_, ok := metricTypes[m]
	return ok
}

type EntityType string

const (
	EntityCompany EntityType = "company"
	EntityAnalyst EntityType = "analyst"
	EntityFirm    EntityType = "firm"
	EntitySector  EntityType = "sector"
	EntityProduct EntityType = "product"
	EntityPerson  EntityType = "person"
	EntityOther   EntityType = "other"
)

var entityTypes = map[EntityType]struct{}{
	EntityCompany: {}, EntityAnalyst: {}, EntityFirm: {}, EntitySector: {},
	EntityProduct: {}, EntityPerson: {}, EntityOther: {},
}

func (t EntityType) Valid() bool {
	_, ok := entityTypes[t]
	return ok
}

type RelationshipType string

const (
	RelCovers            RelationshipType = "covers"
	RelWorksAt           RelationshipType = "works_at"
	RelCompetitorOf      RelationshipType = "competitor_of"
	RelSupplierOf        RelationshipType = "supplier_of"
	RelCustomerOf        RelationshipType = "customer_of"
	RelSubsidiaryOf      RelationshipType = "subsidiary_of"
	RelPartnerOf         RelationshipType = "partner_of"
	RelMentions          RelationshipType = "mentions"
	RelCircularReference RelationshipType = "circular_reference"
)

var relationshipTypes = map[RelationshipType]struct{}{
	RelCovers: {}, RelWorksAt: {}, RelCompetitorOf: {}, RelSupplierOf: {}, RelCustomerOf: {},
	RelSubsidiaryOf: {}, RelPartnerOf: {}, RelMentions: {}, RelCircularReference: {},
}

func (r RelationshipType) Valid() bool {
	_, ok := relationshipTypes[r]
	return ok
}
