package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/ernie/trinity-link/internal/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{r.Method, r.URL.Path, r.Header.Get("Authorization"), body})
		f.mu.Unlock()
	}

	mux.HandleFunc("POST /users/@me/channels", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		json.NewEncoder(w).Encode(map[string]string{"id": "dm-1"})
	})
	mux.HandleFunc("POST /channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Write([]byte(`{"id":"m1"}`))
	})
	mux.HandleFunc("GET /guilds/g1/roles", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		json.NewEncoder(w).Encode([]map[string]string{{"id": "r1", "name": "Authenticated"}})
	})
	mux.HandleFunc("GET /guilds/g1", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		json.NewEncoder(w).Encode(map[string]any{"id": "g1", "name": "Trinity", "roles": []map[string]string{{"id": "r9", "name": "Admin"}}})
	})
	mux.HandleFunc("PUT /guilds/g1/members/{user}/roles/{role}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.PathValue("user") == "banned" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"Missing Permissions","code":50013}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /guilds/g1/members/{user}/roles/{role}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeAPI) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	c, err := NewClient("tok", "g1", srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, api
}

func TestSendDirectMessageUsesEmbedAndCachesChannel(t *testing.T) {
	ctx := context.Background()
	c, api := newTestClient(t)

	for i := 0; i < 2; i++ {
		if err := c.SendDirectMessage(ctx, "u1", domain.Notice{Text: "hello", Tone: domain.ToneSuccess}); err != nil {
			t.Fatalf("SendDirectMessage: %v", err)
		}
	}

	reqs := api.recorded()
	if len(reqs) != 3 {
		t.Fatalf("requests = %+v, want channel open + 2 messages", reqs)
	}
	if reqs[0].Path != "/users/@me/channels" || reqs[0].Body["recipient_id"] != "u1" {
		t.Errorf("channel request = %+v", reqs[0])
	}
	if reqs[0].Auth != "Bot tok" {
		t.Errorf("Authorization = %q", reqs[0].Auth)
	}
	if reqs[1].Path != "/channels/dm-1/messages" {
		t.Errorf("message path = %s", reqs[1].Path)
	}
	embed := reqs[1].Body["embeds"].([]any)[0].(map[string]any)
	if embed["description"] != "hello" || embed["color"] != float64(ColorSuccess) {
		t.Errorf("embed = %v", embed)
	}
}

func TestResolveRole(t *testing.T) {
	ctx := context.Background()
	c, api := newTestClient(t)

	id, err := c.ResolveRole(ctx, "Authenticated")
	if err != nil || id != "r1" {
		t.Fatalf("ResolveRole = %q, %v", id, err)
	}
	if _, err := c.ResolveRole(ctx, "Authenticated"); err != nil {
		t.Fatal(err)
	}
	if n := len(api.recorded()); n != 1 {
		t.Errorf("cached role refetched: %d requests", n)
	}

	if _, err := c.ResolveRole(ctx, "Missing"); !errors.Is(err, domain.ErrRoleNotFound) {
		t.Errorf("err = %v, want ErrRoleNotFound", err)
	}
}

func TestRoleMutations(t *testing.T) {
	ctx := context.Background()
	c, api := newTestClient(t)

	if err := c.AddRole(ctx, "u1", "r1"); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	if err := c.RemoveRole(ctx, "u1", "r1"); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}
	reqs := api.recorded()
	if reqs[0].Method != http.MethodPut || reqs[1].Method != http.MethodDelete || reqs[0].Path != "/guilds/g1/members/u1/roles/r1" {
		t.Errorf("requests = %+v", reqs)
	}

	err := c.AddRole(ctx, "banned", "r1")
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v, want a 403 RESTError", err)
	}
	if restErr.Message == nil || restErr.Message.Message != "Missing Permissions" {
		t.Errorf("message = %+v", restErr.Message)
	}
}

func TestRefreshGuild(t *testing.T) {
	c, _ := newTestClient(t)
	if c.GuildName() != "Discord" {
		t.Errorf("default GuildName = %q", c.GuildName())
	}
	if err := c.RefreshGuild(context.Background()); err != nil {
		t.Fatalf("RefreshGuild: %v", err)
	}
	if c.GuildName() != "Trinity" {
		t.Errorf("GuildName = %q", c.GuildName())
	}
	if id, _ := c.cachedRole("Admin"); id != "r9" {
		t.Errorf("roles not cached from guild")
	}
}

func TestAPITransportRejectsBadURL(t *testing.T) {
	if _, err := NewClient("tok", "g1", "not a url"); err == nil {
		t.Error("NewClient accepted an api_url without a host")
	}
}
