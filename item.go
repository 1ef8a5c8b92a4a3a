package amee

import (
	"context"
	"net/http"
	"strings"
)

// Item is a remote record representing a measured activity under a profile,
// identified by the URI the API returned on creation.
type Item struct {
	client *Client
	uri    string
}

// NewItem wraps an existing profile item URI, e.g. one persisted from an
// earlier session.
func (c *Client) NewItem(uri string) *Item {
	return &Item{client: c, uri: uri}
}

// URI returns the item's URI, or "" once deleted.
func (i *Item) URI() string {
	return i.uri
}

// UID returns the item UID, the last segment of its URI.
func (i *Item) UID() string {
	uri := strings.TrimSuffix(i.uri, "/")
	if idx := strings.LastIndex(uri, "/"); idx != -1 {
		return uri[idx+1:]
	}
	return uri
}

// Get fetches the item's current representation.
func (i *Item) Get(ctx context.Context) (Document, error) {
	if i.uri == "" {
		return nil, ErrDeleted
	}
	resp, err := i.client.Get(ctx, i.uri, nil)
	if err != nil {
		return nil, err
	}
	return resp.Document, nil
}

// CO2 returns the amount of carbon dioxide represented by this profile item,
// in kilograms per year. The API has returned the amount both as a plain
// number and as a {value, unit} pair; both shapes are accepted, and a unit
// other than kg/year is an error.
func (i *Item) CO2(ctx context.Context) (float64, error) {
	doc, err := i.Get(ctx)
	if err != nil {
		return 0, err
	}
	return extractAmount(doc, i.uri)
}

// Delete deletes this item. The facade is unusable afterwards. Never cached.
func (i *Item) Delete(ctx context.Context) error {
	if i.uri == "" {
		return ErrDeleted
	}
	if _, err := i.client.Delete(ctx, i.uri); err != nil {
		return err
	}
	i.uri = ""
	return nil
}

func extractAmount(doc Document, uri string) (float64, error) {
	if amount := doc.Map("profileItem", "amount"); amount != nil {
		if unit := amount.String("unit"); unit != "" && unit != "kg/year" {
			return 0, &ClientError{
				Type:    ErrorTypeDecode,
				Message: "profile item uses unit '" + unit + "' rather than kg/year",
				Method:  http.MethodGet,
				Path:    uri,
			}
		}
		if value, ok := amount.Float("value"); ok {
			return value, nil
		}
	}
	if value, ok := doc.Float("profileItem", "amount"); ok {
		return value, nil
	}
	if value, ok := doc.Float("amount"); ok {
		return value, nil
	}

	return 0, &ClientError{
		Type:    ErrorTypeDecode,
		Message: "no amount in profile item response",
		Method:  http.MethodGet,
		Path:    uri,
	}
}
