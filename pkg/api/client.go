package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/retry"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/wait"
)

const backendName = "rest"

// ClientConfig holds the settings of the REST client
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.example.com/v4
	BaseURL string
	// Token is sent as a bearer token
	Token string
	// Timeout bounds every single HTTP request
	Timeout time.Duration
	// RequestsPerSecond and Burst configure the client-side rate limiter
	RequestsPerSecond float64
	Burst             int
	// PageSize is requested from paginated list endpoints
	PageSize int
	// Backoff is used to retry idempotent requests
	Backoff wait.Backoff
	// CircuitBreaker configures the breaker shared by all requests
	CircuitBreaker *retry.BreakerConfig
	// HTTPClient overrides the default HTTP client
	HTTPClient *http.Client
	UserAgent  string
}

// DefaultClientConfig returns a configuration with sensible defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 10,
		Burst:             20,
		PageSize:          100,
		Backoff:           retry.DefaultBackoff(),
		CircuitBreaker:    retry.DefaultBreakerConfig(),
		UserAgent:         "subnetctl",
	}
}

// Client talks JSON over HTTP to the infrastructure API
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	pageSize   int
	timeout    time.Duration
	backoff    wait.Backoff
	httpClient *http.Client

	// Rate limiter for remote API calls
	rateLimiter *rate.Limiter
	breaker     *retry.Breaker

	// Logger for structured logging
	Logger logr.Logger
	obs    *observability.StructuredLogger
}

// NewClient creates a REST client. metrics may be nil.
func NewClient(cfg ClientConfig, logger logr.Logger, metrics *observability.Metrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	defaults := DefaultClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaults.PageSize
	}
	if cfg.Backoff.Steps <= 0 {
		cfg.Backoff = defaults.Backoff
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	log := logger.WithName("infra-api-client")
	obs := observability.NewStructuredLogger(log, metrics)

	breakerCfg := defaults.CircuitBreaker
	if cfg.CircuitBreaker != nil {
		copied := *cfg.CircuitBreaker
		breakerCfg = &copied
	}
	onStateChange := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(from, to retry.BreakerState) {
		obs.LogCircuitBreakerEvent(context.Background(), backendName, from, to)
		if onStateChange != nil {
			onStateChange(from, to)
		}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		userAgent:   cfg.UserAgent,
		pageSize:    cfg.PageSize,
		timeout:     cfg.Timeout,
		backoff:     cfg.Backoff,
		httpClient:  cfg.HTTPClient,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:     retry.NewBreaker(breakerCfg, log),
		Logger:      log,
		obs:         obs,
	}, nil
}

// GetInstance returns an instance, including its interface generation
func (c *Client) GetInstance(ctx context.Context, instanceID string) (*netif.Instance, error) {
	var instance netif.Instance
	if err := c.do(ctx, "GetInstance", http.MethodGet, instancePath(instanceID), nil, nil, &instance); err != nil {
		return nil, err
	}
	if instance.InterfaceGeneration == "" {
		instance.InterfaceGeneration = netif.GenerationLegacy
	}
	return &instance, nil
}

// ListConfigs returns every configuration profile of a legacy instance
func (c *Client) ListConfigs(ctx context.Context, instanceID string) ([]netif.ConfigProfile, error) {
	profiles, err := listAll[netif.ConfigProfile](ctx, c, "ListConfigs", instancePath(instanceID)+"/configs")
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		for j := range profiles[i].Interfaces {
			profiles[i].Interfaces[j].ConfigID = profiles[i].ID
		}
	}
	return profiles, nil
}

// ListInterfaces returns the interfaces attached to a modern instance
func (c *Client) ListInterfaces(ctx context.Context, instanceID string) ([]netif.ModernInterface, error) {
	var resp struct {
		Interfaces []netif.ModernInterface `json:"interfaces"`
	}
	if err := c.do(ctx, "ListInterfaces", http.MethodGet, instancePath(instanceID)+"/interfaces", nil, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Interfaces {
		resp.Interfaces[i].InstanceID = instanceID
	}
	return resp.Interfaces, nil
}

// AppendConfigInterface adds a legacy interface to a configuration profile
func (c *Client) AppendConfigInterface(ctx context.Context, instanceID, configID string, payload LegacyInterfacePayload) (*netif.LegacyInterface, error) {
	var iface netif.LegacyInterface
	path := configPath(instanceID, configID) + "/interfaces"
	if err := c.do(ctx, "AppendConfigInterface", http.MethodPost, path, nil, payload, &iface); err != nil {
		return nil, err
	}
	iface.ConfigID = configID
	return &iface, nil
}

// CreateInterface creates a modern interface on an instance
func (c *Client) CreateInterface(ctx context.Context, instanceID string, payload ModernInterfacePayload) (*netif.ModernInterface, error) {
	var iface netif.ModernInterface
	if err := c.do(ctx, "CreateInterface", http.MethodPost, instancePath(instanceID)+"/interfaces", nil, payload, &iface); err != nil {
		return nil, err
	}
	iface.InstanceID = instanceID
	return &iface, nil
}

// DeleteInterface deletes a legacy interface when configID is set, otherwise
// a modern one. A 404 on the first attempt is returned; a 404 on a retry
// means an earlier attempt deleted the interface but its response was lost.
func (c *Client) DeleteInterface(ctx context.Context, instanceID, configID, interfaceID string) error {
	path := instancePath(instanceID) + "/interfaces/" + url.PathEscape(interfaceID)
	if configID != "" {
		path = configPath(instanceID, configID) + "/interfaces/" + url.PathEscape(interfaceID)
	}

	attempts := 0
	err := c.withRetry(ctx, "DeleteInterface", func() error {
		attempts++
		return c.send(ctx, "DeleteInterface", http.MethodDelete, path, nil, nil, nil)
	})
	if attempts > 1 && IsNotFound(err) {
		c.Logger.Info("Interface already gone after a retried delete", "instanceID", instanceID, "interfaceID", interfaceID, "attempts", attempts)
		return nil
	}
	return err
}

// subnetResponse is the remote shape of a subnet
type subnetResponse struct {
	ID      netif.WireID `json:"id"`
	Label   string       `json:"label"`
	IPv4    string       `json:"ipv4"`
	IPv6    []struct {
		Range string `json:"range"`
	} `json:"ipv6"`
	Linodes []struct {
		ID netif.WireID `json:"id"`
	} `json:"linodes"`
}

func (s subnetResponse) toSubnet() netif.Subnet {
	subnet := netif.Subnet{ID: string(s.ID), Label: s.Label, IPv4CIDR: s.IPv4}
	if len(s.IPv6) > 0 {
		subnet.IPv6CIDR = s.IPv6[0].Range
	}
	for _, linode := range s.Linodes {
		subnet.AttachedInstanceIDs = append(subnet.AttachedInstanceIDs, string(linode.ID))
	}
	return subnet
}

// GetVPC returns a VPC with its subnets
func (c *Client) GetVPC(ctx context.Context, vpcID string) (*netif.VPC, error) {
	var resp struct {
		ID      netif.WireID     `json:"id"`
		Label   string           `json:"label"`
		Region  string           `json:"region"`
		Subnets []subnetResponse `json:"subnets"`
	}
	if err := c.do(ctx, "GetVPC", http.MethodGet, "/vpcs/"+url.PathEscape(vpcID), nil, nil, &resp); err != nil {
		return nil, err
	}

	vpc := &netif.VPC{ID: string(resp.ID), Label: resp.Label, Region: resp.Region}
	for _, s := range resp.Subnets {
		subnet := s.toSubnet()
		if subnet.HasIPv6() {
			vpc.DualStackEnabled = true
		}
		vpc.Subnets = append(vpc.Subnets, subnet)
	}
	return vpc, nil
}

// GetSubnet returns one subnet of a VPC
func (c *Client) GetSubnet(ctx context.Context, vpcID, subnetID string) (*netif.Subnet, error) {
	var resp subnetResponse
	path := "/vpcs/" + url.PathEscape(vpcID) + "/subnets/" + url.PathEscape(subnetID)
	if err := c.do(ctx, "GetSubnet", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	subnet := resp.toSubnet()
	return &subnet, nil
}

// page is one page of a paginated list endpoint
type page[T any] struct {
	Data    []T `json:"data"`
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	Results int `json:"results"`
}

// listAll walks a paginated endpoint to its last page
func listAll[T any](ctx context.Context, c *Client, operation, path string) ([]T, error) {
	var all []T
	for pageNum := 1; ; pageNum++ {
		var p page[T]
		query := url.Values{
			"page":      {strconv.Itoa(pageNum)},
			"page_size": {strconv.Itoa(c.pageSize)},
		}
		if err := c.do(ctx, operation, http.MethodGet, path, query, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Data...)
		if p.Pages <= pageNum {
			return all, nil
		}
	}
}

// do performs one logical call. Reads are retried with backoff; creates
// are sent once.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body, out interface{}) error {
	if method == http.MethodPost {
		return c.send(ctx, operation, method, path, query, body, out)
	}
	return c.withRetry(ctx, operation, func() error {
		return c.send(ctx, operation, method, path, query, body, out)
	})
}

func (c *Client) withRetry(ctx context.Context, operation string, fn func() error) error {
	return retry.Do(ctx, c.Logger, operation, c.backoff, isRetryable, func(context.Context) (bool, error) {
		return true, fn()
	})
}

// send makes one request: rate limit, per-request timeout, breaker
func (c *Client) send(ctx context.Context, operation, method, path string, query url.Values, body, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.breaker.Do(operation, func() error {
		return c.roundTrip(reqCtx, method, path, query, body, out)
	})
	c.obs.LogAPICall(ctx, backendName, operation, time.Since(start), err)
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, retry.ErrBreakerOpen) {
		return false
	}
	return retry.Retryable(err)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeErrors(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeErrors reads the remote error list of a failed response as-is
func decodeErrors(resp *http.Response) error {
	apiErrs := &Errors{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(data) > 0 {
		if jsonErr := json.Unmarshal(data, apiErrs); jsonErr != nil {
			apiErrs.List = []APIError{{Reason: strings.TrimSpace(string(data))}}
		}
	}
	return apiErrs
}

func instancePath(instanceID string) string {
	return "/linode/instances/" + url.PathEscape(instanceID)
}

func configPath(instanceID, configID string) string {
	return instancePath(instanceID) + "/configs/" + url.PathEscape(configID)
}
