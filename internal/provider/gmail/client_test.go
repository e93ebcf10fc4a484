package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/vchat/internal/provider"
	"google.golang.org/api/option"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": message}})
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), zerolog.Nop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("profile includes the primary send-as name", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"emailAddress": "me@example.com"})
		})
		mux.HandleFunc("GET /gmail/v1/users/me/settings/sendAs", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"sendAs": []map[string]any{
				{"sendAsEmail": "alias@example.com", "displayName": "Alias"},
				{"sendAsEmail": "me@example.com", "displayName": "Me Myself", "isPrimary": true},
			}})
		})

		p, err := newTestClient(t, mux).Profile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "me@example.com", p.Email)
		assert.Equal(t, "Me Myself", p.DisplayName)
	})

	t.Run("profile survives a missing send-as scope", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"emailAddress": "me@example.com"})
		})
		mux.HandleFunc("GET /gmail/v1/users/me/settings/sendAs", func(w http.ResponseWriter, r *http.Request) {
			apiError(w, http.StatusForbidden, "insufficient scope")
		})

		p, err := newTestClient(t, mux).Profile(ctx)
		require.NoError(t, err)
		assert.Empty(t, p.DisplayName)
	})

	t.Run("lists ids across pages up to the limit", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("pageToken") == "" {
				writeJSON(w, http.StatusOK, map[string]any{
					"messages":      []map[string]string{{"id": "m1"}, {"id": "m2"}},
					"nextPageToken": "page-2",
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"messages": []map[string]string{{"id": "m3"}, {"id": "m4"}},
			})
		})

		ids, err := newTestClient(t, mux).ListMessageIDs(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
	})

	t.Run("converts the part tree", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "full", r.URL.Query().Get("format"))
			writeJSON(w, http.StatusOK, map[string]any{
				"id":           r.PathValue("id"),
				"threadId":     "t1",
				"internalDate": "1709294400000",
				"labelIds":     []string{"INBOX", "UNREAD"},
				"payload": map[string]any{
					"mimeType": "multipart/mixed",
					"headers":  []map[string]string{{"name": "From", "value": "bob@x.com"}},
					"parts": []map[string]any{
						{"partId": "0", "mimeType": "text/plain", "body": map[string]any{"data": "SGk", "size": 2}},
						{"partId": "1", "mimeType": "application/pdf", "filename": "a.pdf", "body": map[string]any{"attachmentId": "att-1", "size": 10}},
					},
				},
			})
		})

		msg, err := newTestClient(t, mux).GetMessage(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, "t1", msg.ThreadID)
		assert.Equal(t, "1709294400000", msg.InternalDate)
		assert.True(t, msg.HasLabel("UNREAD"))
		require.NotNil(t, msg.Payload)
		assert.Equal(t, "bob@x.com", msg.Payload.Header("from"))
		require.Len(t, msg.Payload.Parts, 2)
		assert.Equal(t, "SGk", msg.Payload.Parts[0].Body.Data)
		assert.Equal(t, "att-1", msg.Payload.Parts[1].Body.AttachmentID)
		assert.Equal(t, "a.pdf", msg.Payload.Parts[1].Filename)
	})

	t.Run("maps status codes to provider errors", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.PathValue("id") {
			case "expired":
				apiError(w, http.StatusUnauthorized, "Invalid Credentials")
			case "gone":
				apiError(w, http.StatusNotFound, "Not Found")
			default:
				apiError(w, http.StatusInternalServerError, "Backend Error")
			}
		})
		c := newTestClient(t, mux)

		_, err := c.GetMessage(ctx, "expired")
		assert.ErrorIs(t, err, provider.ErrUnauthorized)

		_, err = c.GetMessage(ctx, "gone")
		assert.ErrorIs(t, err, provider.ErrNotFound)

		_, err = c.GetMessage(ctx, "broken")
		require.Error(t, err)
		assert.NotErrorIs(t, err, provider.ErrUnauthorized)
	})

	t.Run("fetches attachment data", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}/attachments/{attachmentID}", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "m1", r.PathValue("id"))
			assert.Equal(t, "att-1", r.PathValue("attachmentID"))
			writeJSON(w, http.StatusOK, map[string]any{"data": "cGRm", "size": 3})
		})

		data, err := newTestClient(t, mux).GetAttachment(ctx, "m1", "att-1")
		require.NoError(t, err)
		assert.Equal(t, "cGRm", data)
	})

	t.Run("sends raw messages into a thread", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Raw      string `json:"raw"`
				ThreadID string `json:"threadId"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "cmF3", body.Raw)
			assert.Equal(t, "t1", body.ThreadID)
			writeJSON(w, http.StatusOK, map[string]any{"id": "s1", "threadId": "t1"})
		})

		res, err := newTestClient(t, mux).SendRaw(ctx, "cmF3", "t1")
		require.NoError(t, err)
		assert.Equal(t, "s1", res.ID)
		assert.Equal(t, "t1", res.ThreadID)
	})
}
