package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrRegistryUnavailable = errors.New("company registry unavailable")

// RegistryConfig configures the HTTP registry client.
type RegistryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// RegistryClient queries a REST tax registry of the form
// GET {base}/api/companies/{identifier}.
type RegistryClient struct {
	client *resty.Client
}

type registryCompany struct {
	CIF         string `json:"cif"`
	Denumire    string `json:"denumire"`
	Adresa      string `json:"adresa"`
	Localitate  string `json:"localitate"`
	Judet       string `json:"judet"`
	NumarRegCom string `json:"numar_reg_com"`
	Radiata     bool   `json:"radiata"`
}

// NewRegistryClient builds a resty client for the registry.
func NewRegistryClient(cfg RegistryConfig) (*RegistryClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("registry base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("x-api-key", cfg.APIKey)
	}
	if cfg.Retries > 0 {
		client.SetRetryCount(cfg.Retries)
		client.SetRetryWaitTime(200 * time.Millisecond)
		client.AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})
	}
	return &RegistryClient{client: client}, nil
}

// Lookup returns nil, nil when the registry answers 404.
func (c *RegistryClient) Lookup(ctx context.Context, identifier string) (*Company, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	var record registryCompany
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("identifier", identifier).
		SetResult(&record).
		Get("/api/companies/{identifier}")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, nil
	case resp.IsError():
		return nil, fmt.Errorf("%w: status %d", ErrRegistryUnavailable, resp.StatusCode())
	}

	if strings.TrimSpace(record.Denumire) == "" || record.Radiata {
		return nil, nil
	}

	return &Company{
		Identifier:         identifier,
		Name:               strings.TrimSpace(record.Denumire),
		Address:            strings.TrimSpace(record.Adresa),
		City:               strings.TrimSpace(record.Localitate),
		County:             strings.TrimSpace(record.Judet),
		RegistrationNumber: strings.TrimSpace(record.NumarRegCom),
	}, nil
}

var _ Lookup = (*RegistryClient)(nil)
