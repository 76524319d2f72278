package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"records-rag/internal/models"
)

type queryResponse struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []map[string]any `json:"records"`
}

var soqlEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// quote renders s as a SOQL string literal.
func quote(s string) string {
	return "'" + soqlEscaper.Replace(s) + "'"
}

// query runs a SOQL statement and follows nextRecordsUrl until done.
func (c *Client) query(ctx context.Context, soql string) ([]map[string]any, error) {
	path := c.apiPath("/query?q=" + url.QueryEscape(soql))

	var out []map[string]any
	for path != "" {
		body, err := c.get(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("soql %q: %w", soql, err)
		}

		var page queryResponse
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&page); err != nil {
			return nil, fmt.Errorf("decode soql response: %w", err)
		}
		out = append(out, page.Records...)

		path = ""
		if !page.Done {
			path = page.NextRecordsURL
		}
	}
	return out, nil
}

func (c *Client) ListIDs(ctx context.Context, q models.Query) ([]string, error) {
	recs, err := c.query(ctx, q.String())
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		if id := field(rec, models.FieldID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) FetchMetadata(ctx context.Context, id string, fields []string, entity string) (models.Metadata, error) {
	soql := fmt.Sprintf("SELECT %s FROM %s WHERE Id = %s", strings.Join(fields, ", "), entity, quote(id))
	recs, err := c.query(ctx, soql)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", entity, id, models.ErrNotFound)
	}
	return project(recs[0], fields), nil
}

func (c *Client) FetchLinked(ctx context.Context, parentField, value, entity, selectField string) ([]models.Metadata, error) {
	soql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", selectField, entity, parentField, quote(value))
	recs, err := c.query(ctx, soql)
	if err != nil {
		return nil, err
	}
	out := make([]models.Metadata, 0, len(recs))
	for _, rec := range recs {
		out = append(out, project(rec, []string{selectField}))
	}
	return out, nil
}

// FetchBytes downloads a ContentVersion body, from the configured download
// URL prefix when set and from the VersionData resource otherwise.
func (c *Client) FetchBytes(ctx context.Context, id string) ([]byte, error) {
	path := c.apiPath("/sobjects/" + models.EntityContentVersion + "/" + url.PathEscape(id) + "/VersionData")
	if c.cfg.DownloadURL != "" {
		path = c.cfg.DownloadURL + url.PathEscape(id)
	}
	data, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}
	return data, nil
}

func project(rec map[string]any, fields []string) models.Metadata {
	md := make(models.Metadata, len(fields))
	for _, f := range fields {
		md[f] = field(rec, f)
	}
	return md
}

// field reads a record value. Response keys use the API name casing, which
// may differ from the casing used in the query.
func field(rec map[string]any, name string) string {
	v, ok := rec[name]
	if !ok {
		for k, kv := range rec {
			if strings.EqualFold(k, name) {
				v = kv
				break
			}
		}
	}
	return scalar(v)
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
