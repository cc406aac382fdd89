// Package sdclient speaks the SD Løn web-service protocol: HTTP GET with a
// flat parameter map (dates formatted DD.MM.YYYY) returning XML named after
// the service.
package sdclient

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/modules/sd/domain/types"
)

const defaultBaseURL = "https://service.sd.dk/sdws/"

// PayloadRecorder persists raw SD responses for auditing. Recording failures
// are never fatal to the lookup itself.
type PayloadRecorder interface {
	RecordPayload(ctx context.Context, requestID uuid.UUID, fullURL, params, response string, statusCode int) error
}

type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	recorder   PayloadRecorder
	log        *logrus.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithPayloadRecorder(r PayloadRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

func New(username, password string, log *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		username:   username,
		password:   password,
		httpClient: http.DefaultClient,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lookup fires a request against SD and decodes the named response element
// into out. SD signals failure by answering with a SOAP envelope instead of
// the element named after the service.
func (c *Client) lookup(ctx context.Context, service string, params map[string]string, out any) error {
	fullURL := c.baseURL + service

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	requestID := uuid.New()
	c.log.WithFields(logrus.Fields{
		"service":    service,
		"request_id": requestID,
	}).Info("SD lookup")
	c.log.WithField("params", flattenParams(params)).Debug("SD lookup params")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL+"?"+values.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "build SD request")
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "SD lookup %s", service)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read SD response for %s", service)
	}

	if c.recorder != nil {
		if err := c.recorder.RecordPayload(ctx, requestID, fullURL, flattenParams(params), string(body), resp.StatusCode); err != nil {
			c.log.WithError(err).Error("could not save SD response to payload database")
		}
	}

	if err := xml.Unmarshal(body, out); err != nil {
		var envelope envelopeXML
		if envErr := xml.Unmarshal(body, &envelope); envErr == nil {
			return errors.Errorf("SD api error, service %s, envelope: %s", service, envelope.Body)
		}
		return errors.Wrapf(err, "decode SD response for %s", service)
	}
	c.log.WithField("service", service).Debug("SD lookup done")
	return nil
}

func flattenParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}

// GetEmployment returns the current employments as of the request's effective
// date.
func (c *Client) GetEmployment(ctx context.Context, req GetEmploymentRequest) ([]types.Person, error) {
	var resp getEmploymentResponseXML
	if err := c.lookup(ctx, "GetEmployment20111201", req.params(), &resp); err != nil {
		return nil, err
	}
	return toDomainPersons(resp.Person)
}

// GetEmploymentChanged returns the employment segments changed inside the
// request's window, or all future segments for the open-ended variant.
func (c *Client) GetEmploymentChanged(ctx context.Context, req GetEmploymentChangedRequest) ([]types.Person, error) {
	if req.open() {
		var resp getEmploymentChangedOpenResponseXML
		if err := c.lookup(ctx, "GetEmploymentChanged20111201", req.params(), &resp); err != nil {
			return nil, err
		}
		return toDomainPersons(resp.Person)
	}
	var resp getEmploymentChangedResponseXML
	if err := c.lookup(ctx, "GetEmploymentChangedAtDate20111201", req.params(), &resp); err != nil {
		return nil, err
	}
	return toDomainPersons(resp.Person)
}

// GetDepartment returns the department registrations overlapping the request
// window.
func (c *Client) GetDepartment(ctx context.Context, req GetDepartmentRequest) ([]types.Department, error) {
	var resp getDepartmentResponseXML
	if err := c.lookup(ctx, "GetDepartment20111201", req.params(), &resp); err != nil {
		return nil, err
	}
	return toDomainDepartments(resp.Department)
}

// GetDepartmentParent returns the parent unit UUID at the effective date, or
// (uuid.Nil, false) when the response carries no parent.
func (c *Client) GetDepartmentParent(ctx context.Context, req GetDepartmentParentRequest) (uuid.UUID, bool, error) {
	var resp getDepartmentParentResponseXML
	if err := c.lookup(ctx, "GetDepartmentParent20190701", req.params(), &resp); err != nil {
		return uuid.Nil, false, err
	}
	if resp.DepartmentParent == nil || resp.DepartmentParent.DepartmentUUIDIdentifier == "" {
		return uuid.Nil, false, nil
	}
	parent, err := uuid.Parse(resp.DepartmentParent.DepartmentUUIDIdentifier)
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, "parse department parent uuid")
	}
	return parent, true, nil
}

// GetInstitution resolves the institution for an institution identifier.
func (c *Client) GetInstitution(ctx context.Context, req GetInstitutionRequest) (types.Institution, error) {
	var resp getInstitutionResponseXML
	if err := c.lookup(ctx, "GetInstitution20111201", req.params(), &resp); err != nil {
		return types.Institution{}, err
	}
	inst := resp.Region.Institution
	unitUUID, err := uuid.Parse(inst.InstitutionUUIDIdentifier)
	if err != nil {
		return types.Institution{}, errors.Wrap(err, "parse institution uuid")
	}
	return types.Institution{Identifier: inst.InstitutionIdentifier, UnitUUID: unitUUID}, nil
}
