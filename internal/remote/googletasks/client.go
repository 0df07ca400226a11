// Package googletasks implements remote.Client on the Google Tasks API.
//
// Lists map to task lists (the parent id of a list is ignored: the API only
// exposes the authenticated user's lists) and tasks map to tasks.
package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/mschirtzinger/tsync/internal/remote"
	"github.com/mschirtzinger/tsync/internal/schema"
)

const (
	// PageSize is the number of items per page.
	PageSize = 100

	// OAuth scope for Google Tasks
	tasksScope = "https://www.googleapis.com/auth/tasks"
)

// Client implements remote.Client using the Google Tasks API.
type Client struct {
	svc *tasks.Service
}

// New creates a client from an OAuth client file and a stored token.
func New(ctx context.Context, oauthClientPath, tokenPath string) (*Client, error) {
	clientJSON, err := os.ReadFile(oauthClientPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth client file: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(clientJSON, tasksScope)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth client file: %w", err)
	}

	tokenData, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}

	// Token source refreshes automatically.
	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, &token))
	return NewWithHTTPClient(ctx, httpClient)
}

// NewWithHTTPClient creates a client with a custom HTTP client. Extra
// options (for example option.WithEndpoint in tests) are passed through.
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// List implements remote.Client.
func (c *Client) List(ctx context.Context, coll schema.Collection, parentID string) ([]remote.Record, error) {
	records := []remote.Record{}

	if coll == schema.CollectionLists {
		err := c.svc.Tasklists.List().MaxResults(PageSize).Pages(ctx, func(resp *tasks.TaskLists) error {
			for _, l := range resp.Items {
				records = append(records, listRecord(l, parentID))
			}
			return nil
		})
		if err != nil {
			return nil, wrapError(err)
		}
		return records, nil
	}

	err := c.svc.Tasks.List(parentID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, t := range resp.Items {
				records = append(records, taskRecord(t, parentID))
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(err)
	}
	return records, nil
}

// Create implements remote.Client.
func (c *Client) Create(ctx context.Context, coll schema.Collection, parentID string, fields schema.Fields) (string, error) {
	if coll == schema.CollectionLists {
		l, err := c.svc.Tasklists.Insert(&tasks.TaskList{Title: fields.Title}).Context(ctx).Do()
		if err != nil {
			return "", wrapError(err)
		}
		return l.Id, nil
	}

	t, err := c.svc.Tasks.Insert(parentID, toTask(fields)).Context(ctx).Do()
	if err != nil {
		return "", wrapError(err)
	}
	return t.Id, nil
}

// Update implements remote.Client.
func (c *Client) Update(ctx context.Context, coll schema.Collection, parentID, id string, fields schema.Fields) error {
	if coll == schema.CollectionLists {
		_, err := c.svc.Tasklists.Patch(id, &tasks.TaskList{Title: fields.Title}).Context(ctx).Do()
		return wrapError(err)
	}

	task := toTask(fields)
	task.Id = id
	// Patch skips empty fields, so a cleared due date or reopened task must
	// be sent explicitly.
	task.NullFields = nullFields(fields)
	_, err := c.svc.Tasks.Patch(parentID, id, task).Context(ctx).Do()
	return wrapError(err)
}

// Delete implements remote.Client.
func (c *Client) Delete(ctx context.Context, coll schema.Collection, parentID, id string) error {
	if coll == schema.CollectionLists {
		return wrapError(c.svc.Tasklists.Delete(id).Context(ctx).Do())
	}
	return wrapError(c.svc.Tasks.Delete(parentID, id).Context(ctx).Do())
}

func toTask(f schema.Fields) *tasks.Task {
	return &tasks.Task{
		Title:  f.Title,
		Notes:  encodeNotes(f),
		Status: encodeStatus(f.Status),
		Due:    encodeDue(f.DueDate),
	}
}

func nullFields(f schema.Fields) []string {
	var out []string
	if f.DueDate == "" {
		out = append(out, "Due")
	}
	if f.Status != schema.StatusDone {
		out = append(out, "Completed")
	}
	return out
}

func listRecord(l *tasks.TaskList, parentID string) remote.Record {
	rec := remote.Record{ID: l.Id}
	rec.ParentID = parentID
	rec.Title = l.Title
	if t, err := time.Parse(time.RFC3339, l.Updated); err == nil {
		rec.CreatedAt = t
	}
	return rec
}

func taskRecord(t *tasks.Task, parentID string) remote.Record {
	rec := remote.Record{ID: t.Id}
	rec.ParentID = parentID
	rec.Title = t.Title
	rec.Status = decodeStatus(t.Status)
	rec.Priority = schema.PriorityMedium
	rec.DueDate = decodeDue(t.Due)
	rec.Tags = []string{}
	if u, err := time.Parse(time.RFC3339, t.Updated); err == nil {
		rec.CreatedAt = u
		rec.LastUpdated = &u
	}
	decodeNotes(t.Notes, &rec.Fields)
	return rec
}

// wrapError maps API failures onto the remote error taxonomy.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %w", remote.ErrNotFound, err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return fmt.Errorf("%w: %w", remote.ErrUnavailable, err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: token expired or revoked: %w", remote.ErrRejected, err)
		default:
			return fmt.Errorf("%w: %w", remote.ErrRejected, err)
		}
	}

	if remote.IsConnectivity(err) {
		return fmt.Errorf("%w: %w", remote.ErrUnavailable, err)
	}
	return err
}

var _ remote.Client = (*Client)(nil)
