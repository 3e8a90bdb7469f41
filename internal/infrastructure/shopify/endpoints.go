package shopify

import (
	"fmt"
	"strings"

	"storefront-customer-layer/internal/domain"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// Endpoints resolves the identity provider and customer API URLs of one shop.
// The shop id is derived lazily so a missing domain is reported on first use.
type Endpoints struct {
	IdentityHost string // e.g. https://shopify.com
	ShopDomain   string // e.g. green-acres.myshopify.com
	APIVersion   string // e.g. 2024-10
}

// ShopID strips the .myshopify.com suffix from the configured domain
func (e Endpoints) ShopID() (string, error) {
	shop := strings.TrimSpace(e.ShopDomain)
	shop = strings.TrimPrefix(strings.TrimPrefix(shop, "https://"), "http://")
	shop = strings.TrimRight(shop, "/")
	if shop == "" {
		return "", fmt.Errorf("%w: shop domain is not set", domain.ErrConfiguration)
	}
	return goshopify.ShopShortName(shop), nil
}

func (e Endpoints) base() (string, error) {
	shopID, err := e.ShopID()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(e.IdentityHost, "/") + "/" + shopID, nil
}

// AuthorizeURL is the OAuth authorize endpoint
func (e Endpoints) AuthorizeURL() (string, error) {
	base, err := e.base()
	if err != nil {
		return "", err
	}
	return base + "/auth/oauth/authorize", nil
}

// TokenURL is the OAuth token endpoint
func (e Endpoints) TokenURL() (string, error) {
	base, err := e.base()
	if err != nil {
		return "", err
	}
	return base + "/auth/oauth/token", nil
}

// LogoutURL is the end-session endpoint
func (e Endpoints) LogoutURL() (string, error) {
	base, err := e.base()
	if err != nil {
		return "", err
	}
	return base + "/auth/logout", nil
}

// GraphQLURL is the customer account API endpoint
func (e Endpoints) GraphQLURL() (string, error) {
	base, err := e.base()
	if err != nil {
		return "", err
	}
	if e.APIVersion == "" {
		return "", fmt.Errorf("%w: customer API version is not set", domain.ErrConfiguration)
	}
	return fmt.Sprintf("%s/account/customer/api/%s/graphql", base, e.APIVersion), nil
}
