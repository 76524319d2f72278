package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"records-rag/internal/config"
	"records-rag/internal/models"
)

type fakeOrg struct {
	server    *httptest.Server
	logins    atomic.Int32
	queries   []string
	failQuery bool
}

func newFakeOrg(t *testing.T) *fakeOrg {
	t.Helper()
	org := &fakeOrg{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "user@example.com", r.PostForm.Get("username"))
		assert.Equal(t, "ck", r.PostForm.Get("client_id"))
		org.logins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok",
			"token_type":   "Bearer",
			"instance_url": org.server.URL,
		})
	})

	mux.HandleFunc("GET /services/data/v59.0/query", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if org.failQuery {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query().Get("q")
		org.queries = append(org.queries, q)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(q, "SELECT Id FROM ContentVersion"):
			w.Write([]byte(`{"totalSize":3,"done":false,"nextRecordsUrl":"/services/data/v59.0/query/01g-2000",
				"records":[{"attributes":{"type":"ContentVersion"},"Id":"068A"},{"Id":"068B"}]}`))
		case strings.HasPrefix(q, "SELECT Id, Title, ContentSize FROM ContentVersion WHERE Id = '068A'"):
			w.Write([]byte(`{"totalSize":1,"done":true,"records":[{"Id":"068A","Title":"Guide","ContentSize":1024,"Description":null}]}`))
		case strings.HasPrefix(q, "SELECT LinkedEntityId FROM ContentDocumentLink"):
			w.Write([]byte(`{"totalSize":2,"done":true,"records":[{"LinkedEntityId":"005U"},{"LinkedEntityId":"ka0X"}]}`))
		default:
			w.Write([]byte(`{"totalSize":0,"done":true,"records":[]}`))
		}
	})

	mux.HandleFunc("GET /services/data/v59.0/query/01g-2000", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"totalSize":3,"done":true,"records":[{"Id":"068C"}]}`))
	})

	mux.HandleFunc("GET /services/data/v59.0/sobjects/ContentVersion/{id}/VersionData", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "068A" {
			http.Error(w, `[{"errorCode":"NOT_FOUND"}]`, http.StatusNotFound)
			return
		}
		w.Write([]byte("file bytes"))
	})

	org.server = httptest.NewServer(mux)
	t.Cleanup(org.server.Close)
	return org
}

func newTestClient(org *fakeOrg) *Client {
	return New(context.Background(), config.SalesforceConfig{
		LoginURL:          org.server.URL,
		APIVersion:        "59.0",
		RequestsPerSecond: 100,
		Burst:             10,
		SessionTTL:        time.Hour,
		Timeout:           5 * time.Second,
		Username:          "user@example.com",
		Password:          "secret",
		ConsumerKey:       "ck",
		ConsumerSecret:    "cs",
	})
}

func TestClient_ListIDsFollowsPagination(t *testing.T) {
	org := newFakeOrg(t)
	c := newTestClient(org)

	ids, err := c.ListIDs(context.Background(), models.Query{
		Entity: "ContentVersion",
		Where:  "CreatedById='005Vd000001282YIAQ'",
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"068A", "068B", "068C"}, ids)
	assert.Equal(t, []string{"SELECT Id FROM ContentVersion WHERE CreatedById='005Vd000001282YIAQ' LIMIT 10"}, org.queries)
	assert.Equal(t, int32(1), org.logins.Load(), "session is reused across requests")
}

func TestClient_FetchMetadata(t *testing.T) {
	org := newFakeOrg(t)
	c := newTestClient(org)
	ctx := context.Background()

	md, err := c.FetchMetadata(ctx, "068A", []string{"Id", "Title", "ContentSize"}, "ContentVersion")
	require.NoError(t, err)
	assert.Equal(t, models.Metadata{"Id": "068A", "Title": "Guide", "ContentSize": "1024"}, md)

	_, err = c.FetchMetadata(ctx, "missing", []string{"Id"}, "ContentVersion")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestClient_FetchLinked(t *testing.T) {
	org := newFakeOrg(t)
	c := newTestClient(org)

	links, err := c.FetchLinked(context.Background(), "ContentDocumentId", "069D", "ContentDocumentLink", "LinkedEntityId")
	require.NoError(t, err)
	assert.Equal(t, []models.Metadata{{"LinkedEntityId": "005U"}, {"LinkedEntityId": "ka0X"}}, links)
	assert.Equal(t, "SELECT LinkedEntityId FROM ContentDocumentLink WHERE ContentDocumentId = '069D'", org.queries[0])
}

func TestClient_FetchBytes(t *testing.T) {
	org := newFakeOrg(t)
	c := newTestClient(org)
	ctx := context.Background()

	data, err := c.FetchBytes(ctx, "068A")
	require.NoError(t, err)
	assert.Equal(t, []byte("file bytes"), data)

	_, err = c.FetchBytes(ctx, "068Z")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestClient_ServerErrorIsConnectivity(t *testing.T) {
	org := newFakeOrg(t)
	org.failQuery = true
	c := newTestClient(org)

	_, err := c.ListIDs(context.Background(), models.Query{Entity: "ContentVersion"})
	assert.ErrorIs(t, err, models.ErrConnectivity)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestClient_UnreachableIsConnectivity(t *testing.T) {
	org := newFakeOrg(t)
	c := newTestClient(org)
	org.server.Close()

	_, err := c.ListIDs(context.Background(), models.Query{Entity: "ContentVersion"})
	assert.ErrorIs(t, err, models.ErrConnectivity)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'O\'Brien'`, quote("O'Brien"))
	assert.Equal(t, `'a\\b'`, quote(`a\b`))
}
