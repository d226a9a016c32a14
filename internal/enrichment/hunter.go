package enrichment

import (
	"context"

	"socialnet/internal/observability"

	"resty.dev/v3"
)

const (
	hunterProvider   = "hunter"
	hunterVerifyPath = "/v2/email-verifier"
)

// HunterClient verifies addresses with the Hunter email verifier API.
type HunterClient struct {
	client *resty.Client
	apiKey string
}

// NewHunterClient creates a Hunter client.
func NewHunterClient(cfg Config) *HunterClient {
	return &HunterClient{
		client: newRestyClient(cfg, hunterProvider),
		apiKey: cfg.APIKey,
	}
}

func (c *HunterClient) Close() error {
	return c.client.Close()
}

// Verify calls GET /v2/email-verifier and returns data.result and data.score.
func (c *HunterClient) Verify(ctx context.Context, email string) (v *Verification, err error) {
	ctx, span := observability.StartClientSpan(ctx, hunterProvider, "email-verifier")
	defer func() {
		record(hunterProvider, err)
		observability.EndSpan(span, err)
	}()

	type response struct {
		Data struct {
			Result string `json:"result"`
			Score  int    `json:"score"`
		} `json:"data"`
	}

	res, err := c.client.R().WithContext(ctx).
		SetQueryParam("email", email).
		SetQueryParam("api_key", c.apiKey).
		SetResult(&response{}).
		Get(hunterVerifyPath)
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, statusError(hunterProvider, res)
	}

	data := res.Result().(*response).Data
	return &Verification{Result: data.Result, Score: data.Score}, nil
}
