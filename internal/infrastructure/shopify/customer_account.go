package shopify

import (
	"context"
	"fmt"

	"storefront-customer-layer/internal/domain"
	"storefront-customer-layer/internal/ports"

	"github.com/rs/zerolog"
)

// CustomerAccount implements the customer resource operations over GraphQL
type CustomerAccount struct {
	client *GraphQLClient
	logger zerolog.Logger
}

var _ ports.CustomerAccountAPI = (*CustomerAccount)(nil)

// NewCustomerAccount creates the customer account API adapter
func NewCustomerAccount(client *GraphQLClient, logger zerolog.Logger) *CustomerAccount {
	return &CustomerAccount{client: client, logger: logger}
}

type mutationPayload struct {
	UserErrors []domain.UserErrorDetail `json:"userErrors"`
}

func (p *mutationPayload) userErrors() []domain.UserErrorDetail {
	if p == nil {
		return nil
	}
	return p.UserErrors
}

// GetCustomer fetches and flattens the full customer record
func (a *CustomerAccount) GetCustomer(ctx context.Context, accessToken string) (*domain.ShopifyCustomer, error) {
	var payload customerPayload
	variables := map[string]any{
		"addressCount":  addressPageSize,
		"orderCount":    orderPageSize,
		"lineItemCount": lineItemPageSize,
	}
	if err := a.client.Do(ctx, accessToken, customerQuery, variables, &payload); err != nil {
		return nil, err
	}
	if payload.Customer == nil {
		return nil, fmt.Errorf("customer account response has no customer")
	}

	customer := mapCustomer(payload.Customer)
	a.logger.Debug().
		Int("addresses", len(customer.Addresses)).
		Int("orders", len(customer.Orders)).
		Msg("Fetched customer record")
	return customer, nil
}

// UpdateCustomer changes the profile names
func (a *CustomerAccount) UpdateCustomer(ctx context.Context, accessToken string, input domain.ProfileInput) ([]domain.UserErrorDetail, error) {
	var out struct {
		CustomerUpdate *mutationPayload `json:"customerUpdate"`
	}
	variables := map[string]any{"input": input}
	if err := a.client.Do(ctx, accessToken, customerUpdateMutation, variables, &out); err != nil {
		return nil, err
	}
	return out.CustomerUpdate.userErrors(), nil
}

// CreateAddress adds an address, optionally making it the default
func (a *CustomerAccount) CreateAddress(ctx context.Context, accessToken string, input domain.AddressInput, makeDefault bool) ([]domain.UserErrorDetail, error) {
	var out struct {
		CustomerAddressCreate *mutationPayload `json:"customerAddressCreate"`
	}
	variables := map[string]any{
		"address":        input,
		"defaultAddress": makeDefault,
	}
	if err := a.client.Do(ctx, accessToken, customerAddressCreateMutation, variables, &out); err != nil {
		return nil, err
	}
	return out.CustomerAddressCreate.userErrors(), nil
}

// UpdateAddress edits an address. A nil input only changes the default flag.
func (a *CustomerAccount) UpdateAddress(ctx context.Context, accessToken string, addressID string, input *domain.AddressInput, makeDefault bool) ([]domain.UserErrorDetail, error) {
	var out struct {
		CustomerAddressUpdate *mutationPayload `json:"customerAddressUpdate"`
	}
	variables := map[string]any{
		"addressId":      addressID,
		"defaultAddress": makeDefault,
	}
	if input != nil {
		variables["address"] = input
	}
	if err := a.client.Do(ctx, accessToken, customerAddressUpdateMutation, variables, &out); err != nil {
		return nil, err
	}
	return out.CustomerAddressUpdate.userErrors(), nil
}

// DeleteAddress removes an address
func (a *CustomerAccount) DeleteAddress(ctx context.Context, accessToken string, addressID string) ([]domain.UserErrorDetail, error) {
	var out struct {
		CustomerAddressDelete *mutationPayload `json:"customerAddressDelete"`
	}
	variables := map[string]any{"addressId": addressID}
	if err := a.client.Do(ctx, accessToken, customerAddressDeleteMutation, variables, &out); err != nil {
		return nil, err
	}
	return out.CustomerAddressDelete.userErrors(), nil
}
