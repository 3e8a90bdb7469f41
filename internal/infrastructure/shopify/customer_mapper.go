package shopify

import (
	"time"

	"storefront-customer-layer/internal/domain"
)

// Wire shapes of the customer query. Every optional value is a pointer so
// that absent and null fields decode without error.

type customerPayload struct {
	Customer *customerNode `json:"customer"`
}

type customerNode struct {
	ID           string  `json:"id"`
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	EmailAddress *struct {
		EmailAddress *string `json:"emailAddress"`
	} `json:"emailAddress"`
	PhoneNumber *struct {
		PhoneNumber *string `json:"phoneNumber"`
	} `json:"phoneNumber"`
	DefaultAddress *addressNode             `json:"defaultAddress"`
	Addresses      *connection[addressNode] `json:"addresses"`
	Orders         *connection[orderNode]   `json:"orders"`
}

type connection[T any] struct {
	Nodes []*T `json:"nodes"`
}

type addressNode struct {
	ID            string   `json:"id"`
	FirstName     *string  `json:"firstName"`
	LastName      *string  `json:"lastName"`
	Company       *string  `json:"company"`
	Address1      *string  `json:"address1"`
	Address2      *string  `json:"address2"`
	City          *string  `json:"city"`
	ZoneCode      *string  `json:"zoneCode"`
	TerritoryCode *string  `json:"territoryCode"`
	Zip           *string  `json:"zip"`
	PhoneNumber   *string  `json:"phoneNumber"`
	Formatted     []string `json:"formatted"`
}

type moneyNode struct {
	Amount       *string `json:"amount"`
	CurrencyCode *string `json:"currencyCode"`
}

type orderNode struct {
	ID                string                    `json:"id"`
	Name              *string                   `json:"name"`
	Number            *int                      `json:"number"`
	ProcessedAt       *time.Time                `json:"processedAt"`
	FinancialStatus   *string                   `json:"financialStatus"`
	FulfillmentStatus *string                   `json:"fulfillmentStatus"`
	TotalPrice        *moneyNode                `json:"totalPrice"`
	LineItems         *connection[lineItemNode] `json:"lineItems"`
}

type lineItemNode struct {
	ID           string  `json:"id"`
	Title        *string `json:"title"`
	VariantTitle *string `json:"variantTitle"`
	Quantity     *int    `json:"quantity"`
	Image        *struct {
		URL *string `json:"url"`
	} `json:"image"`
	Price *moneyNode `json:"price"`
}

// mapCustomer flattens the API customer node. It returns nil only when the
// node itself is nil; collections in the result are never nil.
func mapCustomer(node *customerNode) *domain.ShopifyCustomer {
	if node == nil {
		return nil
	}

	customer := &domain.ShopifyCustomer{
		ID:             node.ID,
		FirstName:      node.FirstName,
		LastName:       node.LastName,
		DefaultAddress: mapAddressPtr(node.DefaultAddress),
		Addresses:      []domain.CustomerAddress{},
		Orders:         []domain.CustomerOrder{},
	}
	if node.EmailAddress != nil {
		customer.Email = node.EmailAddress.EmailAddress
	}
	if node.PhoneNumber != nil {
		customer.Phone = node.PhoneNumber.PhoneNumber
	}

	if node.Addresses != nil {
		for _, a := range node.Addresses.Nodes {
			if a != nil {
				customer.Addresses = append(customer.Addresses, mapAddress(a))
			}
		}
	}
	if node.Orders != nil {
		for _, o := range node.Orders.Nodes {
			if o != nil {
				customer.Orders = append(customer.Orders, mapOrder(o))
			}
		}
	}

	return customer
}

func mapAddressPtr(node *addressNode) *domain.CustomerAddress {
	if node == nil {
		return nil
	}
	address := mapAddress(node)
	return &address
}

func mapAddress(node *addressNode) domain.CustomerAddress {
	formatted := node.Formatted
	if formatted == nil {
		formatted = []string{}
	}
	return domain.CustomerAddress{
		ID:            node.ID,
		FirstName:     deref(node.FirstName),
		LastName:      deref(node.LastName),
		Company:       deref(node.Company),
		Address1:      deref(node.Address1),
		Address2:      deref(node.Address2),
		City:          deref(node.City),
		ZoneCode:      deref(node.ZoneCode),
		TerritoryCode: deref(node.TerritoryCode),
		Zip:           deref(node.Zip),
		PhoneNumber:   deref(node.PhoneNumber),
		Formatted:     formatted,
	}
}

func mapOrder(node *orderNode) domain.CustomerOrder {
	order := domain.CustomerOrder{
		ID:                node.ID,
		Name:              deref(node.Name),
		ProcessedAt:       node.ProcessedAt,
		FinancialStatus:   deref(node.FinancialStatus),
		FulfillmentStatus: deref(node.FulfillmentStatus),
		TotalPrice:        mapMoney(node.TotalPrice),
		LineItems:         []domain.OrderLineItem{},
	}
	if node.Number != nil {
		order.Number = *node.Number
	}
	if node.LineItems != nil {
		for _, li := range node.LineItems.Nodes {
			if li != nil {
				order.LineItems = append(order.LineItems, mapLineItem(li))
			}
		}
	}
	return order
}

func mapLineItem(node *lineItemNode) domain.OrderLineItem {
	item := domain.OrderLineItem{
		ID:           node.ID,
		Title:        deref(node.Title),
		VariantTitle: deref(node.VariantTitle),
		Price:        mapMoney(node.Price),
	}
	if node.Quantity != nil {
		item.Quantity = *node.Quantity
	}
	if node.Image != nil {
		item.ImageURL = deref(node.Image.URL)
	}
	return item
}

func mapMoney(node *moneyNode) domain.Money {
	if node == nil {
		return domain.Money{}
	}
	return domain.Money{Amount: deref(node.Amount), CurrencyCode: deref(node.CurrencyCode)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
