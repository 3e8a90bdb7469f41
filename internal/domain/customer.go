package domain

import "time"

// ShopifyCustomer is the flattened customer record read by account views.
// It is always rebuilt from a full fetch, never patched locally.
type ShopifyCustomer struct {
	ID             string            `json:"id"`
	FirstName      *string           `json:"firstName"`
	LastName       *string           `json:"lastName"`
	Email          *string           `json:"email"`
	Phone          *string           `json:"phone"`
	DefaultAddress *CustomerAddress  `json:"defaultAddress"`
	Addresses      []CustomerAddress `json:"addresses"`
	Orders         []CustomerOrder   `json:"orders"`
}

// CustomerAddress is a postal address from the customer's address book
type CustomerAddress struct {
	ID            string   `json:"id"`
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	Company       string   `json:"company"`
	Address1      string   `json:"address1"`
	Address2      string   `json:"address2"`
	City          string   `json:"city"`
	ZoneCode      string   `json:"zoneCode"`
	TerritoryCode string   `json:"territoryCode"`
	Zip           string   `json:"zip"`
	PhoneNumber   string   `json:"phoneNumber"`
	Formatted     []string `json:"formatted"`
}

// CustomerOrder is one order in the customer's history
type CustomerOrder struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Number            int             `json:"number"`
	ProcessedAt       *time.Time      `json:"processedAt"`
	FinancialStatus   string          `json:"financialStatus"`
	FulfillmentStatus string          `json:"fulfillmentStatus"`
	TotalPrice        Money           `json:"totalPrice"`
	LineItems         []OrderLineItem `json:"lineItems"`
}

// OrderLineItem is a purchased product line within an order
type OrderLineItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	VariantTitle string `json:"variantTitle"`
	Quantity     int    `json:"quantity"`
	ImageURL     string `json:"imageUrl"`
	Price        Money  `json:"price"`
}

// Money is a decimal amount as sent by the API, kept as a string
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// ProfileInput is the editable part of the customer profile
type ProfileInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// AddressInput is the payload for address creation and update
type AddressInput struct {
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Company       string `json:"company,omitempty"`
	Address1      string `json:"address1,omitempty"`
	Address2      string `json:"address2,omitempty"`
	City          string `json:"city,omitempty"`
	ZoneCode      string `json:"zoneCode,omitempty"`
	TerritoryCode string `json:"territoryCode,omitempty"`
	Zip           string `json:"zip,omitempty"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
}

// UserErrorDetail is a business-rule rejection returned inside a mutation payload
type UserErrorDetail struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code"`
}
