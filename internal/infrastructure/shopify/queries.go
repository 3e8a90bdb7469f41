package shopify

// Page sizes of the customer query connections
const (
	addressPageSize  = 20
	orderPageSize    = 20
	lineItemPageSize = 50
)

const addressFields = `
fragment AddressFields on CustomerAddress {
  id
  firstName
  lastName
  company
  address1
  address2
  city
  zoneCode
  territoryCode
  zip
  phoneNumber
  formatted
}
`

const customerQuery = `
query CustomerAccount($addressCount: Int!, $orderCount: Int!, $lineItemCount: Int!) {
  customer {
    id
    firstName
    lastName
    emailAddress {
      emailAddress
    }
    phoneNumber {
      phoneNumber
    }
    defaultAddress {
      ...AddressFields
    }
    addresses(first: $addressCount) {
      nodes {
        ...AddressFields
      }
    }
    orders(first: $orderCount, sortKey: PROCESSED_AT, reverse: true) {
      nodes {
        id
        name
        number
        processedAt
        financialStatus
        fulfillmentStatus
        totalPrice {
          amount
          currencyCode
        }
        lineItems(first: $lineItemCount) {
          nodes {
            id
            title
            variantTitle
            quantity
            image {
              url
            }
            price {
              amount
              currencyCode
            }
          }
        }
      }
    }
  }
}
` + addressFields

const customerUpdateMutation = `
mutation CustomerUpdate($input: CustomerUpdateInput!) {
  customerUpdate(input: $input) {
    customer {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}
`

const customerAddressCreateMutation = `
mutation CustomerAddressCreate($address: CustomerAddressInput!, $defaultAddress: Boolean) {
  customerAddressCreate(address: $address, defaultAddress: $defaultAddress) {
    customerAddress {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}
`

const customerAddressUpdateMutation = `
mutation CustomerAddressUpdate($addressId: ID!, $address: CustomerAddressInput, $defaultAddress: Boolean) {
  customerAddressUpdate(addressId: $addressId, address: $address, defaultAddress: $defaultAddress) {
    customerAddress {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}
`

const customerAddressDeleteMutation = `
mutation CustomerAddressDelete($addressId: ID!) {
  customerAddressDelete(addressId: $addressId) {
    deletedAddressId
    userErrors {
      field
      message
      code
    }
  }
}
`
