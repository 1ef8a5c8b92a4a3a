package amee

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Profile is a remote account context under which items are tracked. It
// wraps the profile UID and the client that created it; deletion is remote,
// so a deleted facade refuses further use.
type Profile struct {
	client *Client
	uid    string
}

// CreateProfile creates a new AMEE profile and returns it.
func (c *Client) CreateProfile(ctx context.Context) (*Profile, error) {
	resp, err := c.Post(ctx, "/profiles", url.Values{"profile": {"true"}})
	if err != nil {
		return nil, err
	}

	uid := resp.Document.String("profile", "uid")
	if uid == "" {
		return nil, &ClientError{
			Type:    ErrorTypeDecode,
			Message: "profile uid missing from response",
			Method:  http.MethodPost,
			Path:    "/profiles",
		}
	}

	return &Profile{client: c, uid: uid}, nil
}

// Profiles lists the existing profiles.
func (c *Client) Profiles(ctx context.Context) ([]*Profile, error) {
	resp, err := c.Get(ctx, "/profiles", nil)
	if err != nil {
		return nil, err
	}

	var profiles []*Profile
	for _, raw := range resp.Document.Slice("profiles") {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if uid := Document(entry).String("uid"); uid != "" {
			profiles = append(profiles, &Profile{client: c, uid: uid})
		}
	}

	return profiles, nil
}

// DeleteProfile deletes an AMEE profile given its UID.
func (c *Client) DeleteProfile(ctx context.Context, uid string) error {
	_, err := c.Delete(ctx, "/profiles/"+uid)
	return err
}

// UID returns the profile's UID, or "" once deleted.
func (p *Profile) UID() string {
	return p.uid
}

// Delete deletes this profile. The facade is unusable afterwards.
func (p *Profile) Delete(ctx context.Context) error {
	if p.uid == "" {
		return ErrDeleted
	}
	if err := p.client.DeleteProfile(ctx, p.uid); err != nil {
		return err
	}
	p.uid = ""
	return nil
}

// CreateItem creates a profile item: the measured activity at path with the
// given drilldown choices and item values. The drilldown must be complete,
// i.e. choices must identify exactly one data item.
func (p *Profile) CreateItem(ctx context.Context, path string, choices Choices, values Values) (*Item, error) {
	if p.uid == "" {
		return nil, ErrDeleted
	}
	if err := validatePath(path); err != nil {
		return nil, err
	}

	dataItemUID, err := p.client.DrillComplete(ctx, path, choices)
	if err != nil {
		return nil, err
	}

	form := url.Values{"dataItemUid": {dataItemUID}}
	for name, value := range values {
		form.Set(name, value)
	}

	resp, err := p.client.Post(ctx, "/profiles/"+p.uid+path, form)
	if err != nil {
		return nil, err
	}

	uri := resp.Location()
	if uri == "" {
		return nil, &ClientError{
			Type:    ErrorTypeDecode,
			Message: "item location missing from response",
			Method:  http.MethodPost,
			Path:    "/profiles/" + p.uid + path,
		}
	}

	return &Item{client: p.client, uri: uri}, nil
}

// ItemSpec describes one item for batch creation.
type ItemSpec struct {
	Path    string
	Choices Choices
	Values  Values
}

// CreateItems creates a number of profile items through the batch endpoint.
// Unlike repeated CreateItem calls this is atomic: if one item fails, none
// are created.
func (p *Profile) CreateItems(ctx context.Context, specs []ItemSpec, commonValues Values) ([]*Item, error) {
	if p.uid == "" {
		return nil, ErrDeleted
	}

	profileItems := make([]map[string]string, 0, len(specs))
	for _, spec := range specs {
		if err := validatePath(spec.Path); err != nil {
			return nil, err
		}

		dataItemUID, err := p.client.DrillComplete(ctx, spec.Path, spec.Choices)
		if err != nil {
			return nil, err
		}

		item := make(map[string]string, len(commonValues)+len(spec.Values)+1)
		for name, value := range commonValues {
			item[name] = value
		}
		item["dataItemUid"] = dataItemUID
		for name, value := range spec.Values {
			item[name] = value
		}
		profileItems = append(profileItems, item)
	}

	body, err := json.Marshal(map[string]interface{}{"profileItems": profileItems})
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(ctx, &Request{
		Method:      http.MethodPost,
		Path:        "/profiles/" + p.uid,
		Body:        body,
		ContentType: "application/json",
	})
	if err != nil {
		return nil, err
	}

	var items []*Item
	for _, raw := range resp.Document.Slice("profileItems") {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if uri := Document(entry).String("uri"); uri != "" {
			items = append(items, &Item{client: p.client, uri: uri})
		}
	}

	return items, nil
}
