package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"storefront-customer-layer/internal/domain"
	"storefront-customer-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Request outcomes used as log fields and metric labels
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeHTTPError    = "http_error"
	OutcomeGraphQLError = "graphql_error"
	OutcomeNetworkError = "network_error"
)

// GraphQLClient executes bearer-authenticated documents against the customer account API
type GraphQLClient struct {
	endpoints  Endpoints
	httpClient *http.Client
	metrics    ports.APIMetrics
	logger     zerolog.Logger

	// document -> operation name
	operations sync.Map
}

// NewGraphQLClient creates a client for the shop's customer account API.
// httpClient and metrics may be nil.
func NewGraphQLClient(endpoints Endpoints, httpClient *http.Client, metrics ports.APIMetrics, logger zerolog.Logger) *GraphQLClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GraphQLClient{
		endpoints:  endpoints,
		httpClient: httpClient,
		metrics:    metrics,
		logger:     logger,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage   `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

// OperationName returns the name of the first operation in the document,
// or its kind ("query", "mutation") when it is anonymous.
func (c *GraphQLClient) OperationName(query string) (string, error) {
	if name, ok := c.operations.Load(query); ok {
		return name.(string), nil
	}

	doc, err := parser.ParseQuery(&ast.Source{Name: "customer-account", Input: query})
	if err != nil {
		return "", fmt.Errorf("failed to parse GraphQL document: %w", err)
	}
	if len(doc.Operations) == 0 {
		return "", fmt.Errorf("GraphQL document has no operation")
	}

	op := doc.Operations[0]
	name := op.Name
	if name == "" {
		name = string(op.Operation)
	}
	c.operations.Store(query, name)
	return name, nil
}

// Do posts the document and decodes data into out (which may be nil).
// A 401 becomes domain.ErrUnauthorized so callers can refresh and retry.
func (c *GraphQLClient) Do(ctx context.Context, accessToken string, query string, variables map[string]any, out any) error {
	operation, err := c.OperationName(query)
	if err != nil {
		return err
	}

	endpoint, err := c.endpoints.GraphQLURL()
	if err != nil {
		return err
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	outcome, err := c.send(req, operation, out)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.ObserveRequest(operation, outcome, elapsed)
	}

	event := c.logger.Debug()
	if outcome != OutcomeOK {
		event = c.logger.Warn().Err(err)
	}
	event.
		Str("operation", operation).
		Str("outcome", outcome).
		Dur("duration", elapsed).
		Msg("Customer account API request")

	return err
}

func (c *GraphQLClient) send(req *http.Request, operation string, out any) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OutcomeNetworkError, fmt.Errorf("failed to execute %s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return OutcomeNetworkError, fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return OutcomeUnauthorized, fmt.Errorf("%s: %w", operation, domain.ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return OutcomeHTTPError, &domain.TransportError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return OutcomeHTTPError, fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	if len(envelope.Errors) > 0 {
		payload, _ := json.Marshal(envelope.Errors)
		return OutcomeGraphQLError, &domain.GraphQLError{Operation: operation, Payload: string(payload)}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return OutcomeHTTPError, fmt.Errorf("failed to decode %s data: %w", operation, err)
		}
	}
	return OutcomeOK, nil
}
