// internal/clients/membership_client.go
package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"

	"libracatalog/internal/access"
	"libracatalog/internal/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MembershipClient resolves session tokens against the membership
// service. Calls go through a circuit breaker; a rejected token is a
// normal answer and does not count as a failure.
type MembershipClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

var _ access.Resolver = (*MembershipClient)(nil)

// NewMembershipClient returns a client for the membership service at
// baseURL. A nil httpClient selects one with a five second timeout.
func NewMembershipClient(baseURL string, httpClient *http.Client) *MembershipClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &MembershipClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "membership",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, apperr.ErrUnauthenticated)
			},
		}),
	}
}

// ResolveSession asks the membership service who owns token.
func (c *MembershipClient) ResolveSession(ctx context.Context, token string) (*access.Principal, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchPrincipal(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return result.(*access.Principal), nil
}

func (c *MembershipClient) fetchPrincipal(ctx context.Context, token string) (*access.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sessions/current", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach membership service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("membership service rejected token: %w", apperr.ErrUnauthenticated)
	default:
		return nil, fmt.Errorf("unexpected status code from membership service: %d", resp.StatusCode)
	}

	var body struct {
		Principal *access.Principal `json:"principal"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode principal: %w", err)
	}
	if body.Principal == nil {
		return nil, errors.New("membership service returned no principal")
	}
	return body.Principal, nil
}
