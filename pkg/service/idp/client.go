package idp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
	"github.com/yata-dev/yata-server/pkg/utils/safe"
)

const defaultTimeout = 10 * time.Second

// Client talks to the identity provider's backend API. It covers the two
// narrow collaborator interfaces this service consumes: profile fetch by
// subject ID and public key retrieval.
type Client struct {
	apiURL     string
	jwksURL    string
	secretKey  string
	httpClient *http.Client
}

var (
	_ interfaces.ProfileAPI = &Client{}
	_ interfaces.KeySource  = &Client{}
)

type Option func(*Client)

// WithTimeout bounds every outbound provider call
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client (used in tests)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(apiURL, jwksURL, secretKey string, opts ...Option) (*Client, error) {
	if apiURL == "" {
		return nil, goerr.New("provider API URL is required")
	}
	if jwksURL == "" {
		return nil, goerr.New("provider JWKS URL is required")
	}
	if secretKey == "" {
		return nil, goerr.New("provider secret key is required")
	}

	c := &Client{
		apiURL:     apiURL,
		jwksURL:    jwksURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// FetchProfile retrieves the account profile for the subject from the
// provider API. Returns interfaces.ErrProfileNotFound when the provider no
// longer recognizes the subject.
func (c *Client) FetchProfile(ctx context.Context, id types.SubjectID) (*model.Profile, error) {
	if err := id.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid subject ID")
	}

	reqURL := c.apiURL + "/v1/users/" + url.PathEscape(id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create profile request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call provider profile API", goerr.V("subjectID", id))
	}
	defer safe.Close(ctx, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, goerr.Wrap(interfaces.ErrProfileNotFound, "provider does not recognize subject", goerr.V("subjectID", id))
	default:
		return nil, goerr.New("provider profile API returned error",
			goerr.V("subjectID", id),
			goerr.V("status", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read profile response")
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, goerr.Wrap(err, "failed to parse profile response", goerr.V("subjectID", id))
	}

	return user.Profile(), nil
}

// FetchKeySet retrieves the provider's current public JWK set
func (c *Client) FetchKeySet(ctx context.Context) (jwk.Set, error) {
	set, err := jwk.Fetch(ctx, c.jwksURL, jwk.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch provider key set", goerr.V("jwks_url", c.jwksURL))
	}
	return set, nil
}
