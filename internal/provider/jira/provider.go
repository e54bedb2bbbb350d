// Package jira provides the ticketing adapter backed by the Jira REST API v2.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/hvmigrate/hvmigrate/internal/common"
)

// Client talks to one Jira site.
type Client struct {
	rest *common.RESTClient
}

// NewClient creates a Client authenticating with an API token.
func NewClient(baseURL, username, token string) *Client {
	return &Client{rest: common.NewRESTClient(baseURL, common.BasicAuth(username, token))}
}

// Transition is an available workflow transition on an issue.
type Transition struct {
	ID string
	// To is the name of the state the transition leads to.
	To string
}

// AddComment posts an internal comment on issueKey.
func (c *Client) AddComment(ctx context.Context, issueKey, body string) error {
	payload := map[string]interface{}{
		"body": body,
		"properties": []map[string]interface{}{
			{"key": "sd.public.comment", "value": map[string]bool{"internal": true}},
		},
	}
	path := fmt.Sprintf("/rest/api/2/issue/%s/comment", url.PathEscape(issueKey))
	if _, err := c.rest.Do(ctx, http.MethodPost, path, payload); err != nil {
		return fmt.Errorf("failed to comment on %s: %w", issueKey, err)
	}
	return nil
}

// Transitions lists the transitions currently available on issueKey.
func (c *Client) Transitions(ctx context.Context, issueKey string) ([]Transition, error) {
	data, err := c.rest.Get(ctx, fmt.Sprintf("/rest/api/2/issue/%s/transitions", url.PathEscape(issueKey)))
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions of %s: %w", issueKey, err)
	}
	var out []Transition
	gjson.GetBytes(data, "transitions").ForEach(func(_, t gjson.Result) bool {
		out = append(out, Transition{ID: t.Get("id").String(), To: t.Get("to.name").String()})
		return true
	})
	return out, nil
}

// TransitionTo moves issueKey into state. It reports false, without error,
// when no available transition leads there.
func (c *Client) TransitionTo(ctx context.Context, issueKey, state string) (bool, error) {
	transitions, err := c.Transitions(ctx, issueKey)
	if err != nil {
		return false, err
	}
	for _, t := range transitions {
		if t.To != state {
			continue
		}
		payload := map[string]interface{}{"transition": map[string]string{"id": t.ID}}
		path := fmt.Sprintf("/rest/api/2/issue/%s/transitions", url.PathEscape(issueKey))
		if _, err := c.rest.Do(ctx, http.MethodPost, path, payload); err != nil {
			return false, fmt.Errorf("failed to move %s to %q: %w", issueKey, state, err)
		}
		return true, nil
	}
	return false, nil
}

// Issue binds a Client to one issue. It satisfies report.Ticket.
type Issue struct {
	client *Client
	key    string
}

// Issue returns a handle on issueKey.
func (c *Client) Issue(issueKey string) *Issue {
	return &Issue{client: c, key: issueKey}
}

// Comment posts body as an internal comment.
func (i *Issue) Comment(ctx context.Context, body string) error {
	return i.client.AddComment(ctx, i.key, body)
}

// Transition moves the issue to state when a matching transition is available.
func (i *Issue) Transition(ctx context.Context, state string) (bool, error) {
	return i.client.TransitionTo(ctx, i.key, state)
}
