package server

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"loop/internal/media"
	"loop/internal/models"
	"loop/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowAndProfileCounts(t *testing.T) {
	ts := newTestServer(t, "")
	aliceID, alice := ts.login(t)
	bobID, bob := ts.login(t)
	ts.do(t, http.MethodGet, "/api/users/me", bob, nil)

	for i := 0; i < 2; i++ {
		resp := ts.do(t, http.MethodPost, "/api/users/"+bobID.String()+"/follow", alice, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, i == 0, decodeMap(t, resp)["created"])
	}

	resp := ts.do(t, http.MethodPost, "/api/users/"+aliceID.String()+"/follow", alice, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/users/"+bobID.String(), alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeInto[service.ProfileSummary](t, resp)
	assert.Equal(t, int64(1), summary.Followers)
	assert.True(t, summary.IsFollowing)

	resp = ts.do(t, http.MethodGet, "/api/users/"+bobID.String()+"/followers", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	followers := decodeInto[[]models.Profile](t, resp)
	require.Len(t, followers, 1)
	assert.Equal(t, aliceID, followers[0].ID)

	resp = ts.do(t, http.MethodDelete, "/api/users/"+bobID.String()+"/follow", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeMap(t, resp)["removed"])

	resp = ts.do(t, http.MethodGet, "/api/users/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateMyProfile(t *testing.T) {
	ts := newTestServer(t, "")
	_, token := ts.login(t)

	resp := ts.do(t, http.MethodPut, "/api/users/me", token, map[string]any{
		"display_name": "Loop Fan",
		"bio":          "<b>hello</b> there",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decodeInto[models.Profile](t, resp)
	assert.Equal(t, "Loop Fan", profile.DisplayName)
	assert.NotContains(t, profile.Bio, "<b>")

	resp = ts.do(t, http.MethodPut, "/api/users/me", token, map[string]any{
		"display_name": strings.Repeat("x", 101),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCircles(t *testing.T) {
	ts := newTestServer(t, "")
	_, owner := ts.login(t)
	_, member := ts.login(t)

	resp := ts.do(t, http.MethodPost, "/api/circles", owner, map[string]any{"name": "Modular Synths"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	circle := decodeInto[models.Circle](t, resp)
	assert.Equal(t, "modular-synths", circle.Slug)

	resp = ts.do(t, http.MethodPost, "/api/circles", owner, map[string]any{"name": "Modular Synths"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/circles/modular-synths", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, circle.ID, decodeInto[models.Circle](t, resp).ID)

	resp = ts.do(t, http.MethodPost, "/api/circles/"+circle.ID.String()+"/join", member, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/circles/"+circle.ID.String()+"/members", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeInto[[]models.CircleMember](t, resp), 2)

	resp = ts.do(t, http.MethodPost, "/api/loops", member, map[string]any{
		"content":   textBody("patch notes"),
		"circle_id": circle.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/circles/"+circle.ID.String()+"/loops", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeInto[service.FeedPage](t, resp).Loops, 1)

	resp = ts.do(t, http.MethodDelete, "/api/circles/"+circle.ID.String()+"/members/me", owner, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/circles/"+circle.ID.String()+"/members/me", member, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPrivateCircleJoinForbidden(t *testing.T) {
	ts := newTestServer(t, "")
	_, owner := ts.login(t)
	_, outsider := ts.login(t)

	resp := ts.do(t, http.MethodPost, "/api/circles", owner, map[string]any{"name": "Inner Room", "is_private": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	circle := decodeInto[models.Circle](t, resp)

	resp = ts.do(t, http.MethodPost, "/api/circles/"+circle.ID.String()+"/join", outsider, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/circles/"+circle.ID.String()+"/members", outsider, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGifts(t *testing.T) {
	ts := newTestServer(t, "")
	authorID, author := ts.login(t)
	fanID, fan := ts.login(t)
	loop := ts.createLoop(t, author, "tip jar")
	path := "/api/loops/" + loop.ID.String() + "/gifts"

	resp := ts.do(t, http.MethodGet, "/api/gifts/catalog", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeInto[[]models.GiftOption](t, resp), len(models.GiftCatalog))

	resp = ts.do(t, http.MethodPost, path, fan, map[string]any{"gift_type": "star"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.NoError(t, ts.db.Model(&models.Profile{}).Where("id = ?", fanID).Update("coins", 100).Error)

	resp = ts.do(t, http.MethodPost, path, fan, map[string]any{"gift_type": "star"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	gift := decodeInto[models.Gift](t, resp)
	assert.Equal(t, authorID, gift.RecipientID)
	assert.Equal(t, int64(50), gift.Coins)

	resp = ts.do(t, http.MethodPost, path, fan, map[string]any{"gift_type": "unicorn"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, path, author, map[string]any{"gift_type": "rose"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/users/me/gifts", author, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeInto[[]models.Gift](t, resp), 1)
}

func TestStreams(t *testing.T) {
	ts := newTestServer(t, "")
	_, host := ts.login(t)
	_, other := ts.login(t)

	resp := ts.do(t, http.MethodPost, "/api/streams", host, map[string]any{"title": "Late night set"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	stream := decodeInto[models.Stream](t, resp)
	assert.False(t, stream.IsLive)

	resp = ts.do(t, http.MethodPost, "/api/streams/"+stream.ID.String()+"/go-live", other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/streams/"+stream.ID.String()+"/go-live", host, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeInto[models.Stream](t, resp).IsLive)

	resp = ts.do(t, http.MethodGet, "/api/streams/live", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	live := decodeInto[service.LiveStreams](t, resp)
	assert.Equal(t, int64(1), live.Total)

	resp = ts.do(t, http.MethodPost, "/api/streams/"+stream.ID.String()+"/end", host, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeInto[models.Stream](t, resp).IsLive)

	resp = ts.do(t, http.MethodPost, "/api/streams", host, map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotificationsEndpoints(t *testing.T) {
	ts := newTestServer(t, "")
	userID, token := ts.login(t)
	ts.do(t, http.MethodGet, "/api/users/me", token, nil)

	row := &models.Notification{RecipientID: userID, Type: models.NotificationFollow, Title: "New follower"}
	require.NoError(t, ts.db.Create(row).Error)

	resp := ts.do(t, http.MethodGet, "/api/notifications/unread-count", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decodeMap(t, resp)["count"])

	resp = ts.do(t, http.MethodGet, "/api/notifications?unread=true", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeInto[[]models.Notification](t, resp), 1)

	_, stranger := ts.login(t)
	resp = ts.do(t, http.MethodPost, "/api/notifications/"+row.ID.String()+"/read", stranger, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/notifications/"+row.ID.String()+"/read", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/notifications/read-all", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), decodeMap(t, resp)["updated"])

	resp = ts.do(t, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (ts *testServer) upload(t *testing.T, token, filename string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/media", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestUploadMedia(t *testing.T) {
	ts := newTestServer(t, "")
	_, token := ts.login(t)

	resp := ts.upload(t, token, "cover.png", pngBytes(t, 32, 24))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	asset := decodeInto[media.Asset](t, resp)
	assert.True(t, strings.HasPrefix(asset.URL, "https://media.test/"))
	assert.Equal(t, media.KindImage, asset.Kind)
	assert.Equal(t, 32, asset.Width)
	assert.Equal(t, 24, asset.Height)
	assert.Equal(t, 1, ts.store.Count())

	resp = ts.upload(t, token, "run.sh", []byte("#!/bin/sh\x00\x01\x02 rm -rf"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/media", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadMedia_FlagOff(t *testing.T) {
	ts := newTestServer(t, "media_uploads=off")
	_, token := ts.login(t)

	resp := ts.upload(t, token, "cover.png", pngBytes(t, 4, 4))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, ts.store.Count())
}

func TestUserSyndicationFeeds(t *testing.T) {
	ts := newTestServer(t, "")
	authorID, author := ts.login(t)
	ts.createLoop(t, author, "First loop\nwith a second line")

	resp := ts.do(t, http.MethodGet, "/api/users/"+authorID.String()+"/feed.atom", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/atom+xml")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<title>First loop</title>")

	resp = ts.do(t, http.MethodGet, "/api/users/"+authorID.String()+"/feed.rss", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<rss")

	resp = ts.do(t, http.MethodGet, "/api/users/"+uuid.NewString()+"/feed.rss", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	off := newTestServer(t, "syndication=off")
	resp = off.do(t, http.MethodGet, "/api/users/"+authorID.String()+"/feed.atom", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoopTitle(t *testing.T) {
	assert.Equal(t, "New image loop", loopTitle(models.Content{Type: models.ContentImage}))
	assert.Equal(t, "hello", loopTitle(models.Content{Type: models.ContentText, Text: "  hello\nworld"}))
	long := strings.Repeat("é", 90)
	assert.Equal(t, strings.Repeat("é", 80)+"...", loopTitle(models.Content{Type: models.ContentText, Text: long}))
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t, "media_uploads=on")
	adminID, admin := ts.login(t)
	targetID, target := ts.login(t)
	ts.do(t, http.MethodGet, "/api/users/me", admin, nil)
	ts.do(t, http.MethodGet, "/api/users/me", target, nil)

	resp := ts.do(t, http.MethodPut, "/api/admin/users/"+adminID.String()+"/role", target, map[string]any{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/admin/feature-flags", target, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ts.setRole(t, adminID, models.RoleAdmin)

	resp = ts.do(t, http.MethodPut, "/api/admin/users/"+targetID.String()+"/role", admin, map[string]any{"role": "moderator"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.RoleModerator, decodeInto[models.Profile](t, resp).Role)

	resp = ts.do(t, http.MethodPut, "/api/admin/users/"+targetID.String()+"/role", admin, map[string]any{"role": "overlord"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/admin/users/"+targetID.String()+"/ban", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeInto[models.Profile](t, resp).IsBanned)

	resp = ts.do(t, http.MethodPost, "/api/loops", target, map[string]any{"content": textBody("let me in")})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/admin/users/"+targetID.String()+"/ban", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeInto[models.Profile](t, resp).IsBanned)

	resp = ts.do(t, http.MethodGet, "/api/admin/outbox?status=dead", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeInto[service.OutboxReport](t, resp)
	assert.Empty(t, report.Events)

	resp = ts.do(t, http.MethodGet, "/api/admin/outbox?status=weird", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/admin/outbox/replay", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), decodeMap(t, resp)["replayed"])

	resp = ts.do(t, http.MethodGet, "/api/admin/feature-flags", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"media_uploads": "on"}, decodeMap(t, resp)["flags"])
}
