package clio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "rate_change_notifier/internal/domain/clio"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const maxErrorBodyBytes = 300

// ClientOptions configures the Clio API client. Zero values get sensible
// defaults in NewClient.
type ClientOptions struct {
	BaseURL     string
	FieldID     string // custom-field id for the rate-change date
	Credentials domain.Credentials
	HTTPClient  *http.Client
	Logger      *logrus.Entry
}

// Client talks to the Clio v4 API. It implements both
// domain.TokenProvider and domain.FieldUpdater.
type Client struct {
	baseURL    string
	fieldID    string
	creds      domain.Credentials
	httpClient *http.Client
	log        *logrus.Entry
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://eu.app.clio.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		baseURL:    baseURL,
		fieldID:    opts.FieldID,
		creds:      opts.Credentials,
		httpClient: httpClient,
		log:        log,
	}
}

// AcquireToken performs an OAuth2 refresh-token grant against the Clio
// token endpoint. No retry and no caching here; the batch orchestrator
// requests one token per batch and aborts the batch on failure.
func (c *Client) AcquireToken(ctx context.Context) (string, error) {
	conf := &oauth2.Config{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.creds.RefreshToken}).Token()
	if err != nil {
		return "", &domain.AuthError{Err: err}
	}
	return tok.AccessToken, nil
}

type customFieldValue struct {
	ID          string `json:"id"`
	CustomField struct {
		ID json.Number `json:"id"`
	} `json:"custom_field"`
}

type matterFieldsResponse struct {
	Data struct {
		CustomFieldValues []customFieldValue `json:"custom_field_values"`
	} `json:"data"`
}

type fieldValuePayload struct {
	ID          string `json:"id,omitempty"`
	CustomField struct {
		ID json.Number `json:"id"`
	} `json:"custom_field"`
	Value   string `json:"value,omitempty"`
	Destroy bool   `json:"_destroy,omitempty"`
}

type matterPatchPayload struct {
	Data struct {
		CustomFieldValues []fieldValuePayload `json:"custom_field_values"`
	} `json:"data"`
}

// lookupExistingValueID finds the id of the matter's existing custom-field
// value for the configured field, so a repeat run updates in place instead
// of appending a duplicate. Any lookup failure is reported as "not found";
// the caller proceeds with a create attempt regardless.
func (c *Client) lookupExistingValueID(ctx context.Context, matterID, accessToken string) (string, bool) {
	url := fmt.Sprintf("%s/api/v4/matters/%s.json?fields=custom_field_values{id,custom_field}", c.baseURL, matterID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithField("matter_id", matterID).Warnf("Custom field lookup failed, proceeding with create: %v", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.WithField("matter_id", matterID).Warnf("Custom field lookup returned status %d, proceeding with create", resp.StatusCode)
		return "", false
	}

	var parsed matterFieldsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.log.WithField("matter_id", matterID).Warnf("Custom field lookup response unreadable, proceeding with create: %v", err)
		return "", false
	}
	for _, v := range parsed.Data.CustomFieldValues {
		if v.CustomField.ID.String() == c.fieldID {
			return v.ID, true
		}
	}
	return "", false
}

// SetRateChangeDate writes dateValue into the matter's rate-change custom
// field, reusing the existing value id when one is found so repeated runs
// stay idempotent.
func (c *Client) SetRateChangeDate(ctx context.Context, matterID, displayNumber, dateValue, accessToken string) domain.MatterSyncOutcome {
	existingID, _ := c.lookupExistingValueID(ctx, matterID, accessToken)

	value := fieldValuePayload{ID: existingID, Value: dateValue}
	value.CustomField.ID = json.Number(c.fieldID)
	return c.patchMatter(ctx, matterID, displayNumber, accessToken, value)
}

// ClearRateChangeDate marks the matter's rate-change value for deletion.
// If no value exists there is nothing to clear and the call is a success.
func (c *Client) ClearRateChangeDate(ctx context.Context, matterID, displayNumber, accessToken string) domain.MatterSyncOutcome {
	existingID, found := c.lookupExistingValueID(ctx, matterID, accessToken)
	if !found {
		return domain.MatterSyncOutcome{Success: true}
	}

	value := fieldValuePayload{ID: existingID, Destroy: true}
	value.CustomField.ID = json.Number(c.fieldID)
	return c.patchMatter(ctx, matterID, displayNumber, accessToken, value)
}

func (c *Client) patchMatter(ctx context.Context, matterID, displayNumber, accessToken string, value fieldValuePayload) domain.MatterSyncOutcome {
	payload := matterPatchPayload{}
	payload.Data.CustomFieldValues = []fieldValuePayload{value}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.MatterSyncOutcome{Error: fmt.Sprintf("encoding update payload: %v", err)}
	}

	url := fmt.Sprintf("%s/api/v4/matters/%s.json", c.baseURL, matterID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return domain.MatterSyncOutcome{Error: fmt.Sprintf("building update request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.MatterSyncOutcome{Error: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return domain.MatterSyncOutcome{Success: true}
	case resp.StatusCode == http.StatusNotFound:
		// Matter not present in Clio. The local store may reference matters
		// that were never synced upstream or have since been deleted, so
		// this is a soft success, not a failure.
		c.log.WithFields(logrus.Fields{"matter_id": matterID, "display_number": displayNumber}).
			Info("Matter not found in Clio, skipping")
		return domain.MatterSyncOutcome{Success: true, Skipped: true}
	default:
		return domain.MatterSyncOutcome{Error: fmt.Sprintf("%d: %s", resp.StatusCode, truncatedBody(resp.Body))}
	}
}

func truncatedBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
