package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aikun/internal/types"
)

const resultPage = `<html><body>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://example.com/cafe?utm=1">渋谷のおすすめカフェ10選</a>
  <a class="result__snippet" href="https://example.com/cafe">静かな作業向けカフェを紹介。</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.youtube.com%2Fwatch%3Fv%3Dabc&rut=xyz">カフェ巡り動画</a>
  <a class="result__snippet" href="#">vlog</a>
</div>
<div class="nav-links"><a href="/next">Next</a></div>
</body></html>`

func TestParseResults(t *testing.T) {
	results, err := parseResults(resultPage, 10)
	if err != nil {
		t.Fatalf("parseResults failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	if results[0].Title != "渋谷のおすすめカフェ10選" {
		t.Errorf("unexpected title: %q", results[0].Title)
	}
	if results[0].Link != "https://example.com/cafe?utm=1" {
		t.Errorf("unexpected link: %q", results[0].Link)
	}
	if results[0].Snippet == "" {
		t.Error("snippet should be populated")
	}
	if results[0].Platform != types.PlatformWeb {
		t.Errorf("expected web platform, got %s", results[0].Platform)
	}

	// Redirect links are unwrapped and platform-tagged from the real host.
	if results[1].Link != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("redirect not unwrapped: %q", results[1].Link)
	}
	if results[1].Platform != types.PlatformYouTube {
		t.Errorf("expected youtube platform, got %s", results[1].Platform)
	}
}

func TestParseResults_MaxResults(t *testing.T) {
	results, err := parseResults(resultPage, 1)
	if err != nil {
		t.Fatalf("parseResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestSearch_RequestParameters(t *testing.T) {
	var gotQuery, gotLocale, gotRecency string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotLocale = r.URL.Query().Get("kl")
		gotRecency = r.URL.Query().Get("df")
		w.Write([]byte(resultPage))
	}))
	defer srv.Close()

	c := NewDuckDuckGoClient(5 * time.Second)
	c.baseURL = srv.URL

	results, err := c.Search(context.Background(), "渋谷 カフェ", types.SearchOptions{
		Locale:     "jp-jp",
		Recency:    "m",
		SiteFilter: "site:x.com OR site:reddit.com",
		Max:        5,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}

	if gotQuery != "渋谷 カフェ site:x.com OR site:reddit.com" {
		t.Errorf("unexpected q: %q", gotQuery)
	}
	if gotLocale != "jp-jp" {
		t.Errorf("unexpected kl: %q", gotLocale)
	}
	if gotRecency != "m" {
		t.Errorf("unexpected df: %q", gotRecency)
	}
}

func TestSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewDuckDuckGoClient(5 * time.Second)
	c.baseURL = srv.URL

	if _, err := c.Search(context.Background(), "q", types.SearchOptions{}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestPlatformForURL(t *testing.T) {
	tests := []struct {
		link string
		want types.Platform
	}{
		{"https://x.com/user/status/1", types.PlatformX},
		{"https://twitter.com/user", types.PlatformX},
		{"https://www.instagram.com/p/abc", types.PlatformInstagram},
		{"https://old.reddit.com/r/japan", types.PlatformReddit},
		{"https://youtu.be/abc", types.PlatformYouTube},
		{"https://example.com/page", types.PlatformWeb},
		{"::bad::", types.PlatformWeb},
	}
	for _, tt := range tests {
		if got := PlatformForURL(tt.link); got != tt.want {
			t.Errorf("PlatformForURL(%q) = %s, want %s", tt.link, got, tt.want)
		}
	}
}
