package booking

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/entity"
	"slotbook/impl/core"
	"slotbook/lib/api/response"
)

type fakeCore struct {
	resolution *core.Resolution
	resolveErr error
	slot       *entity.Slot
	claimErr   error

	claimedSlotId string
}

func (f *fakeCore) ResolveInvite(string) (*core.Resolution, error) {
	return f.resolution, f.resolveErr
}

func (f *fakeCore) Claim(_, slotId, _, _ string) (*entity.Slot, error) {
	f.claimedSlotId = slotId
	return f.slot, f.claimErr
}

func newRouter(handler Core) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Get("/booking/{token}", Resolve(log, handler))
	r.Post("/booking/{token}", Claim(log, handler))
	return r
}

func doRequest(t *testing.T, router http.Handler, method, url, body string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestResolve(t *testing.T) {
	t.Run("valid invite returns the resolution", func(t *testing.T) {
		fake := &fakeCore{resolution: &core.Resolution{
			Invite: &entity.Invite{Token: "AbCdEfGh23456789", Status: entity.StatusPending},
			EligibleSlots: []*entity.Slot{
				{Id: "s1", Datetime: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC), Available: true},
			},
		}}

		rec, resp := doRequest(t, newRouter(fake), http.MethodGet, "/booking/AbCdEfGh23456789", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Empty(t, resp.Error)
	})

	t.Run("unknown token", func(t *testing.T) {
		fake := &fakeCore{resolveErr: core.ErrNotFound}
		rec, resp := doRequest(t, newRouter(fake), http.MethodGet, "/booking/AbCdEfGh23456789", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.False(t, resp.Success)
		assert.Equal(t, "not_found", resp.Error)
	})

	t.Run("expired token", func(t *testing.T) {
		fake := &fakeCore{resolveErr: core.ErrExpired}
		rec, resp := doRequest(t, newRouter(fake), http.MethodGet, "/booking/AbCdEfGh23456789", "")
		assert.Equal(t, http.StatusGone, rec.Code)
		assert.Equal(t, "expired", resp.Error)
	})

	t.Run("consumed invite carries the booking context", func(t *testing.T) {
		fake := &fakeCore{
			resolveErr: core.ErrAlreadyBooked,
			resolution: &core.Resolution{Invite: &entity.Invite{
				Token:        "AbCdEfGh23456789",
				Status:       entity.StatusBooked,
				BookedSlotId: "s1",
			}},
		}
		rec, resp := doRequest(t, newRouter(fake), http.MethodGet, "/booking/AbCdEfGh23456789", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "already_booked", resp.Error)
		assert.NotNil(t, resp.Data)
	})

	t.Run("storage fault hides the cause", func(t *testing.T) {
		fake := &fakeCore{resolveErr: io.ErrUnexpectedEOF}
		rec, resp := doRequest(t, newRouter(fake), http.MethodGet, "/booking/AbCdEfGh23456789", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, resp.Error)
		assert.NotContains(t, resp.StatusMessage, "EOF")
	})
}

func TestClaim(t *testing.T) {
	const validBody = `{"slot_id":"s1","name":"Ada Lovelace","email":"ada@example.com"}`

	t.Run("valid claim confirms the slot", func(t *testing.T) {
		fake := &fakeCore{slot: &entity.Slot{Id: "s1", BookedBy: "AbCdEfGh23456789"}}
		rec, resp := doRequest(t, newRouter(fake), http.MethodPost, "/booking/AbCdEfGh23456789", validBody)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "s1", fake.claimedSlotId)
	})

	t.Run("missing fields are rejected before the core is reached", func(t *testing.T) {
		fake := &fakeCore{}
		for _, body := range []string{
			`{}`,
			`{"slot_id":"s1"}`,
			`{"slot_id":"s1","name":"Ada"}`,
			`{"slot_id":"s1","name":"Ada","email":"not-an-email"}`,
		} {
			rec, resp := doRequest(t, newRouter(fake), http.MethodPost, "/booking/AbCdEfGh23456789", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
			assert.Equal(t, "invalid_request", resp.Error)
			assert.Empty(t, fake.claimedSlotId)
		}
	})

	t.Run("slot vanished between resolve and claim", func(t *testing.T) {
		fake := &fakeCore{claimErr: entity.ErrSlotNotFound}
		rec, resp := doRequest(t, newRouter(fake), http.MethodPost, "/booking/AbCdEfGh23456789", validBody)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "missing_slot", resp.Error)
	})

	t.Run("lost the race for the slot", func(t *testing.T) {
		fake := &fakeCore{claimErr: entity.ErrSlotTaken}
		rec, resp := doRequest(t, newRouter(fake), http.MethodPost, "/booking/AbCdEfGh23456789", validBody)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "slot_taken", resp.Error)
	})
}
