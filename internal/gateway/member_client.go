package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/pkg/telemetry"
)

// MemberClient reads member records from the member directory service
type MemberClient interface {
	// GetMember retrieves a member; returns domain.ErrMemberNotFound
	// when the directory has no such member
	GetMember(ctx context.Context, memberID string) (*domain.Member, error)

	// GetMembers retrieves a batch of members keyed by ID; missing
	// members are simply absent from the result
	GetMembers(ctx context.Context, memberIDs []string) (map[string]*domain.Member, error)
}

// HTTPMemberClient implements MemberClient against the member service API.
// Concurrent lookups for the same member collapse into one upstream call.
type HTTPMemberClient struct {
	baseURL    string
	httpClient *http.Client
	group      singleflight.Group
}

// MemberClientConfig holds member directory client configuration
type MemberClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewHTTPMemberClient creates a member directory client
func NewHTTPMemberClient(cfg *MemberClientConfig) *HTTPMemberClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPMemberClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetMember retrieves a member by ID
func (c *HTTPMemberClient) GetMember(ctx context.Context, memberID string) (*domain.Member, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.member.get")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", memberID))

	v, err, shared := c.group.Do(memberID, func() (interface{}, error) {
		return c.fetchMember(ctx, memberID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Bool("deduplicated", shared))
	span.SetStatus(codes.Ok, "")
	return v.(*domain.Member), nil
}

func (c *HTTPMemberClient) fetchMember(ctx context.Context, memberID string) (*domain.Member, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/members/"+memberID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build member request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach member service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrMemberNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("member service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read member response: %w", err)
	}

	var member domain.Member
	if err := json.Unmarshal(body, &member); err != nil {
		return nil, fmt.Errorf("failed to decode member: %w", err)
	}

	return &member, nil
}

// GetMembers retrieves a batch of members; lookup failures for
// individual members are skipped, not propagated
func (c *HTTPMemberClient) GetMembers(ctx context.Context, memberIDs []string) (map[string]*domain.Member, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.member.get_batch")
	defer span.End()

	span.SetAttributes(attribute.Int("count", len(memberIDs)))

	members := make(map[string]*domain.Member, len(memberIDs))
	for _, id := range memberIDs {
		member, err := c.GetMember(ctx, id)
		if err != nil {
			continue
		}
		members[id] = member
	}

	span.SetAttributes(attribute.Int("found", len(members)))
	span.SetStatus(codes.Ok, "")
	return members, nil
}

// Ensure HTTPMemberClient implements MemberClient
var _ MemberClient = (*HTTPMemberClient)(nil)
