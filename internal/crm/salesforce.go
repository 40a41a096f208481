package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/sales-lead-agent/internal/leads"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

const (
	duplicatesDetected  = "DUPLICATES_DETECTED"
	eventTimestampFmt   = "2006-01-02T15:04:05.000-0700"
	todayEventsQuery    = "SELECT StartDateTime, EndDateTime FROM Event WHERE StartDateTime = TODAY"
	defaultMeetingTitle = "Call with Sales Advisor"
)

// SalesforceConfig holds configuration for the Salesforce client
type SalesforceConfig struct {
	AuthURL         string // OAuth token endpoint
	ClientID        string
	ClientSecret    string
	APIVersion      string // e.g. "v60.0"
	OwnerID         string // user that owns created events; optional
	Location        *time.Location
	BusinessDay     BusinessDay
	MeetingDuration time.Duration
	MeetingSubject  string
	Timeout         time.Duration
	HTTPClient      *http.Client
	Now             func() time.Time
}

// SalesforceClient implements Client against the Salesforce REST API using
// the client-credentials flow. The access token is shared by every session
// using the client and is guarded by mu.
type SalesforceClient struct {
	cfg        SalesforceConfig
	httpClient *http.Client
	logger     *logging.Logger

	mu          sync.Mutex
	accessToken string
	instanceURL string
}

// NewSalesforceClient validates the configuration and authenticates once.
// A failed token exchange is returned to the caller: the agent cannot run
// without CRM credentials.
func NewSalesforceClient(ctx context.Context, cfg SalesforceConfig, logger *logging.Logger) (*SalesforceClient, error) {
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("crm: salesforce AuthURL is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("crm: salesforce client credentials are required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v60.0"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.BusinessDay.Interval == 0 {
		cfg.BusinessDay = DefaultBusinessDay
	}
	if cfg.MeetingDuration <= 0 {
		cfg.MeetingDuration = 30 * time.Minute
	}
	if cfg.MeetingSubject == "" {
		cfg.MeetingSubject = defaultMeetingTitle
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.Default()
	}

	c := &SalesforceClient{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Component("salesforce"),
	}

	c.mu.Lock()
	err := c.authenticateLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
}

// authenticateLocked exchanges client credentials for a token. Caller holds mu.
func (c *SalesforceClient) authenticateLocked(ctx context.Context) error {
	c.logger.Info("authenticating with salesforce")

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("salesforce authentication failed", "error", err)
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("salesforce authentication rejected", "status", resp.StatusCode)
		return fmt.Errorf("%w: status %d: %s", ErrAuthentication, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("%w: decode token: %v", ErrAuthentication, err)
	}
	if tok.AccessToken == "" || tok.InstanceURL == "" {
		return fmt.Errorf("%w: token response missing access_token or instance_url", ErrAuthentication)
	}

	c.accessToken = tok.AccessToken
	c.instanceURL = strings.TrimSuffix(tok.InstanceURL, "/")
	c.logger.Info("salesforce authentication successful")
	return nil
}

// session returns the current token, re-authenticating lazily when absent.
func (c *SalesforceClient) session(ctx context.Context) (token, instance string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == "" || c.instanceURL == "" {
		if err := c.authenticateLocked(ctx); err != nil {
			return "", "", err
		}
	}
	return c.accessToken, c.instanceURL, nil
}

// invalidate drops token if it is still the current one.
func (c *SalesforceClient) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == token {
		c.accessToken = ""
	}
}

// do performs an authenticated request against path (relative to the instance URL).
func (c *SalesforceClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	token, instance, err := c.session(ctx)
	if err != nil {
		return 0, nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("crm: marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, instance+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("crm: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("crm: read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidate(token)
	}
	return resp.StatusCode, respBody, nil
}

func (c *SalesforceClient) dataPath(suffix string) string {
	return fmt.Sprintf("/services/data/%s/%s", c.cfg.APIVersion, suffix)
}

type salesforceLead struct {
	LastName string `json:"LastName"`
	Company  string `json:"Company"`
	Email    string `json:"Email"`
	Phone    string `json:"Phone"`
}

type duplicateError struct {
	ErrorCode       string `json:"errorCode"`
	Message         string `json:"message"`
	DuplicateResult struct {
		MatchResults []struct {
			MatchRecords []struct {
				Record struct {
					ID string `json:"Id"`
				} `json:"record"`
			} `json:"matchRecords"`
		} `json:"matchResults"`
	} `json:"duplicateResult"`
}

// CreateLead creates a Lead sobject. A duplicate-rule rejection that names an
// existing record is reported as success with that record's id.
func (c *SalesforceClient) CreateLead(ctx context.Context, fields leads.Fields) (LeadResult, error) {
	if fields.HasSentinel() {
		c.logger.Warn("lead info contains N/A, aborting lead creation")
		return LeadResult{}, ErrIncompleteLead
	}

	payload := salesforceLead{
		LastName: fields[leads.FieldName],
		Company:  fields[leads.FieldCompany],
		Email:    fields[leads.FieldEmail],
		Phone:    fields[leads.FieldPhone],
	}

	status, body, err := c.do(ctx, http.MethodPost, c.dataPath("sobjects/Lead/"), payload)
	if err != nil {
		c.logger.Error("failed to create lead", "error", err)
		return LeadResult{}, err
	}

	switch {
	case status == http.StatusCreated:
		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
			return LeadResult{}, fmt.Errorf("crm: decode created lead: %s", strings.TrimSpace(string(body)))
		}
		c.logger.Info("lead created", "lead_id", created.ID)
		return LeadResult{ID: created.ID}, nil
	case status == http.StatusBadRequest && bytes.Contains(body, []byte(duplicatesDetected)):
		if id := existingLeadID(body); id != "" {
			c.logger.Info("duplicate lead detected, using existing record", "lead_id", id)
			return LeadResult{ID: id, Duplicate: true}, nil
		}
	}

	c.logger.Error("failed to create lead", "status", status, "body", string(body))
	return LeadResult{}, fmt.Errorf("crm: create lead: status %d", status)
}

func existingLeadID(body []byte) string {
	var errs []duplicateError
	if err := json.Unmarshal(body, &errs); err != nil {
		return ""
	}
	for _, e := range errs {
		for _, match := range e.DuplicateResult.MatchResults {
			for _, rec := range match.MatchRecords {
				if rec.Record.ID != "" {
					return rec.Record.ID
				}
			}
		}
	}
	return ""
}

type eventQueryResponse struct {
	Records []struct {
		StartDateTime string `json:"StartDateTime"`
		EndDateTime   string `json:"EndDateTime"`
	} `json:"records"`
}

// ListAvailableSlots returns today's free start times in the configured zone.
func (c *SalesforceClient) ListAvailableSlots(ctx context.Context) ([]string, error) {
	path := c.dataPath("query") + "?q=" + url.QueryEscape(todayEventsQuery)
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		c.logger.Error("failed to fetch meeting slots", "error", err)
		return nil, err
	}
	if status != http.StatusOK {
		c.logger.Error("failed to fetch meeting slots", "status", status, "body", string(body))
		return nil, fmt.Errorf("crm: query events: status %d", status)
	}

	var result eventQueryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("crm: decode events: %w", err)
	}

	booked := make(map[string]struct{}, len(result.Records))
	for _, rec := range result.Records {
		if rec.StartDateTime == "" {
			continue
		}
		start, err := time.Parse(eventTimestampFmt, rec.StartDateTime)
		if err != nil {
			c.logger.Warn("could not parse event start time", "start", rec.StartDateTime)
			continue
		}
		booked[start.In(c.cfg.Location).Format(slotLayout)] = struct{}{}
	}

	slots, err := c.cfg.BusinessDay.Available(booked)
	if err != nil {
		return nil, err
	}
	c.logger.Info("available slots", "count", len(slots))
	return slots, nil
}

type salesforceEvent struct {
	Subject       string `json:"Subject"`
	StartDateTime string `json:"StartDateTime"`
	EndDateTime   string `json:"EndDateTime"`
	OwnerID       string `json:"OwnerId,omitempty"`
	WhoID         string `json:"WhoId"`
	Location      string `json:"Location"`
	Description   string `json:"Description"`
}

// BookMeeting creates a meeting Event for the lead at slot (HH:MM, today).
func (c *SalesforceClient) BookMeeting(ctx context.Context, leadID, slot string) error {
	if strings.TrimSpace(leadID) == "" {
		return errors.New("crm: lead id is required")
	}
	start, err := slotOn(slot, c.cfg.Now(), c.cfg.Location)
	if err != nil {
		return err
	}
	start = start.UTC()

	event := salesforceEvent{
		Subject:       c.cfg.MeetingSubject,
		StartDateTime: start.Format(time.RFC3339),
		EndDateTime:   start.Add(c.cfg.MeetingDuration).Format(time.RFC3339),
		OwnerID:       c.cfg.OwnerID,
		WhoID:         leadID,
		Location:      "Virtual Call",
		Description:   "Scheduled via sales assistant",
	}

	status, body, err := c.do(ctx, http.MethodPost, c.dataPath("sobjects/Event/"), event)
	if err != nil {
		c.logger.Error("exception while creating meeting", "error", err, "lead_id", leadID)
		return err
	}
	if status != http.StatusCreated {
		c.logger.Error("failed to create meeting", "status", status, "body", string(body), "lead_id", leadID)
		return fmt.Errorf("crm: create event: status %d", status)
	}
	c.logger.Info("meeting created", "lead_id", leadID, "slot", slot)
	return nil
}

var _ Client = (*SalesforceClient)(nil)
