// Package alertmanager provides the monitoring adapter that creates silences
// through the Alertmanager v2 API.
package alertmanager

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hvmigrate/hvmigrate/internal/common"
	"github.com/hvmigrate/hvmigrate/internal/timewindow"
)

const createdBy = "admin"

// Provider creates silences on one Alertmanager.
type Provider struct {
	rest    *common.RESTClient
	baseURL string
}

// NewProvider creates a Provider using basic authentication.
func NewProvider(baseURL, username, password string) *Provider {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Provider{
		rest:    common.NewRESTClient(baseURL, common.BasicAuth(username, password)),
		baseURL: baseURL,
	}
}

type matcher struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	IsRegex bool   `json:"isRegex"`
	IsEqual bool   `json:"isEqual"`
}

type silence struct {
	Matchers  []matcher `json:"matchers"`
	StartsAt  string    `json:"startsAt"`
	EndsAt    string    `json:"endsAt"`
	CreatedBy string    `json:"createdBy"`
	Comment   string    `json:"comment"`
}

// CreateSilence silences alerts whose label equals value for the whole window
// and returns the silence ID.
func (p *Provider) CreateSilence(ctx context.Context, label, value string, w timewindow.Window, comment string) (string, error) {
	body := silence{
		Matchers:  []matcher{{Name: label, Value: value, IsEqual: true}},
		StartsAt:  w.StartString(),
		EndsAt:    w.EndString(),
		CreatedBy: createdBy,
		Comment:   comment,
	}
	data, err := p.rest.Do(ctx, http.MethodPost, "/api/v2/silences", body)
	if err != nil {
		return "", fmt.Errorf("failed to create silence for %s=%s: %w", label, value, err)
	}
	id := gjson.GetBytes(data, "silenceID").String()
	if id == "" {
		return "", fmt.Errorf("alertmanager returned no silence ID: %s", strings.TrimSpace(string(data)))
	}
	return id, nil
}

// SilenceURL links to a silence in the Alertmanager UI.
func (p *Provider) SilenceURL(id string) string {
	return fmt.Sprintf("%s/#/silences/%s", p.baseURL, id)
}
