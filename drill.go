package amee

import (
	"context"
	"net/http"
	"net/url"
)

// DrillChoice is the next selection a drilldown needs: a parameter name and
// its permitted values.
type DrillChoice struct {
	Name    string
	Choices []string
}

// DrillResult is the outcome of a drilldown step. Either the drilldown is
// complete and UID identifies the data item, or Next names the choice that
// still has to be made.
type DrillResult struct {
	UID  string
	Next *DrillChoice
}

// Complete reports whether the drilldown resolved to a data item.
func (r *DrillResult) Complete() bool {
	return r != nil && r.UID != ""
}

// Drill performs a data item drilldown at path with the given choices. If
// all necessary choices are specified the result carries the data item UID;
// otherwise it carries the next choice to make. Drilldowns are plain GETs,
// so when caching is enabled repeated identical drills are served from the
// cache — data item UIDs change rarely.
func (c *Client) Drill(ctx context.Context, path string, choices Choices) (*DrillResult, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	query := url.Values{}
	for name, value := range choices {
		query.Set(name, value)
	}

	drillPath := "/data" + path + "/drill"
	resp, err := c.Get(ctx, drillPath, query)
	if err != nil {
		return nil, err
	}

	node := resp.Document.Map("choices")
	if node == nil {
		return nil, &ClientError{
			Type:    ErrorTypeDecode,
			Message: "no choices in drilldown response",
			Method:  http.MethodGet,
			Path:    drillPath,
		}
	}

	// Each choice arrives as a {name, value} pair whose fields appear
	// always to be identical; flatten to the names.
	var values []string
	for _, raw := range node.Slice("choices") {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if name := Document(entry).String("name"); name != "" {
			values = append(values, name)
		}
	}

	if node.String("name") == "uid" {
		// Drilldown complete.
		if len(values) == 0 {
			return nil, &ClientError{
				Type:    ErrorTypeAPI,
				Message: "no choices returned; did you specify an invalid value?",
				Method:  http.MethodGet,
				Path:    drillPath,
			}
		}
		return &DrillResult{UID: values[0]}, nil
	}

	return &DrillResult{
		Next: &DrillChoice{
			Name:    node.String("name"),
			Choices: values,
		},
	}, nil
}

// DrillComplete performs a drilldown that must resolve to a single data item
// and returns its UID. An incomplete drilldown is an error naming the
// missing choice.
func (c *Client) DrillComplete(ctx context.Context, path string, choices Choices) (string, error) {
	result, err := c.Drill(ctx, path, choices)
	if err != nil {
		return "", err
	}
	if !result.Complete() {
		return "", &ClientError{
			Type:    ErrorTypeValidation,
			Message: "incomplete drilldown, '" + result.Next.Name + "' must be specified",
			Cause:   ErrIncompleteDrilldown,
			Path:    path,
		}
	}
	return result.UID, nil
}
