package enrichment

import (
	"context"
	"net/http"

	"socialnet/internal/observability"

	"resty.dev/v3"
)

const (
	clearbitProvider = "clearbit"
	clearbitFindPath = "/v2/combined/find"
)

// ClearbitClient looks up names with the Clearbit combined enrichment API.
type ClearbitClient struct {
	client *resty.Client
}

// NewClearbitClient creates a Clearbit client. The API key is sent as the basic auth user.
func NewClearbitClient(cfg Config) *ClearbitClient {
	client := newRestyClient(cfg, clearbitProvider)
	client.SetBasicAuth(cfg.APIKey, "")
	return &ClearbitClient{client: client}
}

func (c *ClearbitClient) Close() error {
	return c.client.Close()
}

// Lookup returns person.name.givenName and familyName. Unknown people yield nil.
func (c *ClearbitClient) Lookup(ctx context.Context, email string) (n *Name, err error) {
	if email == "" {
		return nil, nil
	}

	ctx, span := observability.StartClientSpan(ctx, clearbitProvider, "combined.find")
	defer func() {
		record(clearbitProvider, err)
		observability.EndSpan(span, err)
	}()

	type response struct {
		Person *struct {
			Name struct {
				GivenName  string `json:"givenName"`
				FamilyName string `json:"familyName"`
			} `json:"name"`
		} `json:"person"`
	}

	res, err := c.client.R().WithContext(ctx).
		SetQueryParam("email", email).
		SetResult(&response{}).
		Get(clearbitFindPath)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if !res.IsSuccess() {
		return nil, statusError(clearbitProvider, res)
	}

	person := res.Result().(*response).Person
	if person == nil || (person.Name.GivenName == "" && person.Name.FamilyName == "") {
		return nil, nil
	}
	return &Name{GivenName: person.Name.GivenName, FamilyName: person.Name.FamilyName}, nil
}
