package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/notify"
	"github.com/UkralStul/crewfeed-service/internal/prefs"
	"github.com/UkralStul/crewfeed-service/internal/storage/inmemory"
	"github.com/UkralStul/crewfeed-service/internal/upload"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ana = identity.Identity{UserID: "ana", DisplayName: "Ana"}
	ben = identity.Identity{UserID: "ben", DisplayName: "Ben"}
	cai = identity.Identity{UserID: "cai", DisplayName: "Cai"}
)

type testAPI struct {
	srv    *httptest.Server
	tokens map[string]string
}

func newTestAPI(t *testing.T) *testAPI {
	store := inmemory.New()
	uploadDir := t.TempDir()
	uploader, err := upload.NewLocal(uploadDir, "http://cdn.test/uploads")
	require.NoError(t, err)
	preferences, err := prefs.NewStore(t.TempDir())
	require.NoError(t, err)
	verifier := identity.NewVerifier("test-secret")

	server, err := New(store, uploader, verifier, preferences, DefaultOptions())
	require.NoError(t, err)
	server.UploadDir = uploadDir

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	tokens := map[string]string{}
	for _, id := range []identity.Identity{ana, ben, cai} {
		token, err := verifier.Issue(id)
		require.NoError(t, err)
		tokens[id.UserID] = token
	}
	return &testAPI{srv: srv, tokens: tokens}
}

// call sends a JSON request as user (anonymous when empty) and decodes the
// JSON response, if any, into out.
func (a *testAPI) call(t *testing.T, method, path, user string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	require.NoError(t, err)
	return a.do(t, req, user, out)
}

func (a *testAPI) do(t *testing.T, req *http.Request, user string, out any) int {
	t.Helper()
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+a.tokens[user])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *testAPI) createPost(t *testing.T, user, caption string) map[string]any {
	t.Helper()
	return a.createPostWithVisibility(t, user, caption, "")
}

func (a *testAPI) createPostWithVisibility(t *testing.T, user, caption, visibility string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("caption", caption))
	if visibility != "" {
		require.NoError(t, form.WriteField("visibility", visibility))
	}
	part, err := form.CreateFormFile("images", "deck.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/posts", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())

	var post map[string]any
	require.Equal(t, http.StatusCreated, a.do(t, req, user, &post))
	return post
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func TestAPI_Unauthenticated(t *testing.T) {
	a := newTestAPI(t)

	var resp errorResponse
	status := a.call(t, http.MethodPut, "/users/ana/follow", "", map[string]bool{"following": true}, &resp)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", resp.Error.Code)

	req, err := http.NewRequest(http.MethodGet, a.srv.URL+"/posts", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	// Reading the feed works anonymously.
	var feed map[string]any
	assert.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/posts", "", nil, &feed))
}

func TestAPI_PostAndWorkToggle(t *testing.T) {
	a := newTestAPI(t)
	post := a.createPost(t, "ana", "Deck day")
	postID := post["id"].(string)
	images := post["images"].([]any)
	require.Len(t, images, 1)
	assert.True(t, strings.HasPrefix(images[0].(string), "http://cdn.test/uploads/posts/ana/"))

	var state map[string]any
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, "/posts/"+postID+"/works", "ben", nil, &state))
	assert.Equal(t, true, state["worked"])
	assert.EqualValues(t, 1, state["worksCount"])

	var view map[string]any
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/posts/"+postID, "ben", nil, &view))
	assert.Equal(t, true, view["worked"])
	assert.EqualValues(t, 1, view["worksCount"])

	// The author sees the post as not worked, through a batched feed read.
	var feed struct {
		Items []map[string]any `json:"items"`
	}
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/posts?limit=5", "ana", nil, &feed))
	require.Len(t, feed.Items, 1)
	assert.Equal(t, false, feed.Items[0]["worked"])
	assert.EqualValues(t, 1, feed.Items[0]["worksCount"])

	var inbox map[string]any
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/me/notifications", "ana", nil, &inbox))
	assert.EqualValues(t, 1, inbox["unread"])

	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, "/posts/"+postID+"/works", "ben", nil, &state))
	assert.Equal(t, false, state["worked"])
	assert.EqualValues(t, 0, state["worksCount"])
}

func TestAPI_CommentsAndReplies(t *testing.T) {
	a := newTestAPI(t)
	postID := a.createPost(t, "ana", "Framing")["id"].(string)

	var comment map[string]any
	require.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, "/posts/"+postID+"/comments", "ben",
		map[string]string{"text": "Which joists?"}, &comment))
	commentID := comment["id"].(string)

	var reply map[string]any
	require.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, "/posts/"+postID+"/comments/"+commentID+"/replies", "ana",
		map[string]string{"text": "2x10s"}, &reply))
	assert.Equal(t, commentID, reply["threadRootId"])
	assert.Equal(t, "ben", reply["addressedToUserId"])

	var answer map[string]any
	require.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, "/posts/"+postID+"/comments/"+commentID+"/replies", "ben",
		map[string]string{"text": "Thanks", "addressedTo": reply["id"].(string)}, &answer))
	assert.Equal(t, commentID, answer["threadRootId"])
	assert.Equal(t, "ana", answer["addressedToUserId"])

	var replies struct {
		Items   []map[string]any `json:"items"`
		HasMore bool             `json:"hasMore"`
	}
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/posts/"+postID+"/comments/"+commentID+"/replies?limit=5", "", nil, &replies))
	require.Len(t, replies.Items, 2)
	assert.Equal(t, reply["id"], replies.Items[0]["id"])
	assert.False(t, replies.HasMore)

	var thread map[string]any
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/posts/"+postID+"/thread?focus=gone", "", nil, &thread))
	assert.Equal(t, "expanded", thread["phase"])
	assert.Equal(t, true, thread["focusNotFound"])

	var post map[string]any
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/posts/"+postID, "", nil, &post))
	assert.EqualValues(t, 3, post["commentsCount"])

	var bad errorResponse
	assert.Equal(t, http.StatusBadRequest, a.call(t, http.MethodPost, "/posts/"+postID+"/comments", "ben",
		map[string]string{"text": "  "}, &bad))
	assert.Equal(t, "INVALID_INPUT", bad.Error.Code)
}

func TestAPI_FollowFlow(t *testing.T) {
	a := newTestAPI(t)

	var missing errorResponse
	assert.Equal(t, http.StatusNotFound, a.call(t, http.MethodPut, "/users/ana/follow", "ben", map[string]bool{"following": true}, &missing))

	var profile map[string]any
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPut, "/me/profile", "ana", map[string]string{"name": "Ana P."}, &profile))

	require.Equal(t, http.StatusOK, a.call(t, http.MethodPut, "/users/ana/follow", "ben", map[string]bool{"following": true}, &map[string]any{}))

	var user struct {
		Profile   map[string]any `json:"profile"`
		Following bool           `json:"following"`
	}
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/users/ana", "ben", nil, &user))
	assert.True(t, user.Following)
	assert.EqualValues(t, 1, user.Profile["followersCount"])

	var suggestions struct {
		Items []map[string]any `json:"items"`
	}
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/me/suggestions", "ana", nil, &suggestions))
	require.Len(t, suggestions.Items, 1)
	assert.Equal(t, "ben", suggestions.Items[0]["otherId"])

	assert.Equal(t, http.StatusNoContent, a.call(t, http.MethodDelete, "/me/followers/ben", "ana", nil, nil))
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/users/ana", "ben", nil, &user))
	assert.False(t, user.Following)
	assert.EqualValues(t, 0, user.Profile["followersCount"])
}

func TestAPI_NotificationsInbox(t *testing.T) {
	a := newTestAPI(t)
	postID := a.createPost(t, "ana", "Roof")["id"].(string)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, "/posts/"+postID+"/comments", "ben",
			map[string]string{"text": "nice"}, &map[string]any{}))
	}

	var inbox struct {
		Items  []map[string]any `json:"items"`
		Unread int              `json:"unread"`
	}
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/me/notifications?unread=true", "ana", nil, &inbox))
	require.Len(t, inbox.Items, 2)
	assert.Equal(t, 2, inbox.Unread)

	first := inbox.Items[0]["id"].(string)
	assert.Equal(t, http.StatusNoContent, a.call(t, http.MethodPost, "/me/notifications/"+first+"/read", "ana", nil, nil))
	assert.Equal(t, http.StatusNoContent, a.call(t, http.MethodPost, "/me/notifications/read", "ana", nil, nil))
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/me/notifications", "ana", nil, &inbox))
	assert.Zero(t, inbox.Unread)
	assert.Len(t, inbox.Items, 2)

	assert.Equal(t, http.StatusNoContent, a.call(t, http.MethodDelete, "/me/notifications/"+first, "ana", nil, nil))
	assert.Equal(t, http.StatusNotFound, a.call(t, http.MethodDelete, "/me/notifications/"+first, "ana", nil, &errorResponse{}))
	assert.Equal(t, http.StatusNoContent, a.call(t, http.MethodDelete, "/me/notifications", "ana", nil, nil))
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/me/notifications", "ana", nil, &inbox))
	assert.Empty(t, inbox.Items)
}

func TestAPI_Preferences(t *testing.T) {
	a := newTestAPI(t)

	var p prefs.Preferences
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/me/preferences", "ana", nil, &p))
	assert.Equal(t, prefs.Defaults(), p)

	require.Equal(t, http.StatusOK, a.call(t, http.MethodPut, "/me/preferences", "ana", map[string]string{"view_mode": "grid"}, &p))
	assert.Equal(t, prefs.ViewModeGrid, p.ViewMode)

	assert.Equal(t, http.StatusBadRequest, a.call(t, http.MethodPut, "/me/preferences", "ana", map[string]string{"theme": "neon"}, &errorResponse{}))
	assert.Equal(t, http.StatusUnauthorized, a.call(t, http.MethodGet, "/me/preferences", "", nil, &errorResponse{}))
}

func TestAPI_NotificationStream(t *testing.T) {
	a := newTestAPI(t)
	postID := a.createPost(t, "ana", "Stairs")["id"].(string)

	wsURL := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/ws/notifications?access_token=" + a.tokens["ana"]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var snap notify.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Zero(t, snap.Unread)

	require.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, "/posts/"+postID+"/comments", "ben",
		map[string]string{"text": "solid"}, &map[string]any{}))
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, 1, snap.Unread)
	require.Len(t, snap.Latest, 1)
	assert.Equal(t, "ben", snap.Latest[0].Actor.UserID)
}

func TestAPI_FollowersOnlyPostIsGuarded(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPut, "/me/profile", "ana", map[string]string{"name": "Ana"}, &map[string]any{}))
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPut, "/users/ana/follow", "cai", map[string]bool{"following": true}, &map[string]any{}))

	postID := a.createPostWithVisibility(t, "ana", "Site plans", "followers")["id"].(string)
	var comment map[string]any
	require.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, "/posts/"+postID+"/comments", "ana",
		map[string]string{"text": "Permit came through"}, &comment))
	commentID := comment["id"].(string)

	base := "/posts/" + postID
	text := map[string]string{"text": "hi"}
	routes := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, base, nil},
		{http.MethodPost, base + "/works", nil},
		{http.MethodGet, base + "/thread", nil},
		{http.MethodPost, base + "/thread/more", nil},
		{http.MethodDelete, base + "/thread", nil},
		{http.MethodGet, base + "/thread/replies/" + commentID, nil},
		{http.MethodGet, base + "/comments", nil},
		{http.MethodPost, base + "/comments", text},
		{http.MethodGet, base + "/comments/" + commentID + "/replies", nil},
		{http.MethodPost, base + "/comments/" + commentID + "/replies", text},
	}
	for _, route := range routes {
		for _, user := range []string{"ben", ""} {
			var resp errorResponse
			status := a.call(t, route.method, route.path, user, route.body, &resp)
			assert.Equal(t, http.StatusForbidden, status, "%s %s as %q", route.method, route.path, user)
			assert.Equal(t, "PERMISSION_DENIED", resp.Error.Code, "%s %s as %q", route.method, route.path, user)
		}
	}

	// A follower gets through.
	var state map[string]any
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, base+"/works", "cai", nil, &state))
	assert.EqualValues(t, 1, state["worksCount"])
	var page struct {
		Items []map[string]any `json:"items"`
	}
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, base+"/comments", "cai", nil, &page))
	require.Len(t, page.Items, 1)

	var inbox struct {
		Items []struct {
			Actor struct {
				UserID string `json:"userId"`
			} `json:"actor"`
		} `json:"items"`
	}
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/me/notifications", "ana", nil, &inbox))
	for _, n := range inbox.Items {
		assert.NotEqual(t, "ben", n.Actor.UserID)
	}
}

func TestAPI_MissingPostIsNotFound(t *testing.T) {
	a := newTestAPI(t)
	for _, path := range []string{"/posts/gone", "/posts/gone/thread?focus=c1", "/posts/gone/comments"} {
		var resp errorResponse
		assert.Equal(t, http.StatusNotFound, a.call(t, http.MethodGet, path, "ben", nil, &resp), path)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code, path)
	}
	var resp errorResponse
	assert.Equal(t, http.StatusNotFound, a.call(t, http.MethodPost, "/posts/gone/works", "ben", nil, &resp))
}

func TestAPI_ThreadSession(t *testing.T) {
	a := newTestAPI(t)
	postID := a.createPost(t, "ana", "Stairs")["id"].(string)
	base := "/posts/" + postID

	var ids []string
	for i := 0; i < 12; i++ {
		var c map[string]any
		require.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, base+"/comments", "ben",
			map[string]string{"text": "step " + string(rune('a'+i))}, &c))
		ids = append(ids, c["id"].(string))
	}
	rootID := ids[0]

	type threadView struct {
		Phase    string           `json:"phase"`
		Pages    int              `json:"pages"`
		Comments []map[string]any `json:"comments"`
		HasMore  bool             `json:"hasMore"`
	}
	var view threadView
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, base+"/thread", "ana", nil, &view))
	assert.Equal(t, "expanded", view.Phase)
	assert.Len(t, view.Comments, 10)
	assert.True(t, view.HasMore)

	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, base+"/thread/more", "ana", nil, &view))
	assert.Equal(t, 2, view.Pages)
	assert.Len(t, view.Comments, 12)
	assert.False(t, view.HasMore)

	// Replying through the session bumps the root's count in the kept view.
	require.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, base+"/comments/"+rootID+"/replies", "ana",
		map[string]string{"text": "nice"}, &map[string]any{}))
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, base+"/thread", "ana", nil, &view))
	assert.Equal(t, 2, view.Pages)
	var root map[string]any
	for _, c := range view.Comments {
		if c["id"] == rootID {
			root = c
		}
	}
	require.NotNil(t, root)
	assert.EqualValues(t, 1, root["replyCount"])

	var replies struct {
		Phase   string           `json:"phase"`
		Replies []map[string]any `json:"replies"`
	}
	require.Equal(t, http.StatusOK, a.call(t, http.MethodGet, base+"/thread/replies/"+rootID, "ana", nil, &replies))
	assert.Equal(t, "expanded", replies.Phase)
	assert.Len(t, replies.Replies, 1)
	require.Equal(t, http.StatusOK, a.call(t, http.MethodDelete, base+"/thread/replies/"+rootID, "ana", nil, &replies))
	assert.Equal(t, "collapsed", replies.Phase)

	var missing errorResponse
	assert.Equal(t, http.StatusNotFound, a.call(t, http.MethodGet, base+"/thread/replies/nope", "ana", nil, &missing))

	require.Equal(t, http.StatusOK, a.call(t, http.MethodDelete, base+"/thread", "ana", nil, &view))
	assert.Equal(t, "collapsed", view.Phase)

	// Another viewer has a separate thread, and anonymous callers cannot keep one.
	var conflict errorResponse
	assert.Equal(t, http.StatusConflict, a.call(t, http.MethodPost, base+"/thread/more", "ben", nil, &conflict))
	var unauth errorResponse
	assert.Equal(t, http.StatusUnauthorized, a.call(t, http.MethodPost, base+"/thread/more", "", nil, &unauth))
}
