package letterboxd

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://letterboxd.com"
	fetchTimeout   = 10 * time.Second
)

// Entry is one rated-film entry from a profile's RSS feed, in feed order
// (most recent first). Rating is on the 0–5 scale; 0 means unrated.
type Entry struct {
	Title     string
	Rating    float64
	Year      int
	Genres    []string
	Published time.Time
}

// Client fetches public Letterboxd profile feeds.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting letterboxd.com.
func New() *Client {
	return NewWithBaseURL(defaultBaseURL)
}

// NewWithBaseURL creates a Client pointing at a custom base URL (for testing).
func NewWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{2,15}$`)

// ValidateURL extracts the username from a Letterboxd profile URL or bare
// username and returns it with the canonical profile URL.
func ValidateURL(raw string) (username, canonical string, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", "", fmt.Errorf("empty profile URL")
	}

	if !strings.Contains(s, "/") && !strings.Contains(s, ".") {
		// Bare username.
		username = s
	} else {
		if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			s = "https://" + s
		}
		u, parseErr := url.Parse(s)
		if parseErr != nil {
			return "", "", fmt.Errorf("invalid profile URL")
		}
		host := strings.TrimPrefix(u.Hostname(), "www.")
		if host != "letterboxd.com" {
			return "", "", fmt.Errorf("not a letterboxd.com URL")
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 0 || parts[0] == "" {
			return "", "", fmt.Errorf("profile URL has no username")
		}
		username = parts[0]
	}

	if !usernameRe.MatchString(username) {
		return "", "", fmt.Errorf("invalid letterboxd username %q", username)
	}
	return username, fmt.Sprintf("https://letterboxd.com/%s/", username), nil
}

// rss mirrors the profile feed XML. Letterboxd-namespaced elements are
// matched by local name.
type rss struct {
	Channel struct {
		Items []feedItem `xml:"item"`
	} `xml:"channel"`
}

type feedItem struct {
	Title        string `xml:"title"`
	FilmTitle    string `xml:"filmTitle"`
	FilmYear     string `xml:"filmYear"`
	MemberRating string `xml:"memberRating"`
	Genres       string `xml:"genres"`
	PubDate      string `xml:"pubDate"`
}

// FetchRatings downloads and parses the user's RSS feed, returning entries
// in feed order.
func (c *Client) FetchRatings(ctx context.Context, username string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	feedURL := fmt.Sprintf("%s/%s/rss/", c.baseURL, username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "twin/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no such letterboxd profile: %s", username)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var feed rss
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	entries := make([]Entry, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		entries = append(entries, itemToEntry(item))
	}
	return entries, nil
}

func itemToEntry(item feedItem) Entry {
	e := Entry{Title: strings.TrimSpace(item.FilmTitle)}
	if e.Title == "" {
		e.Title = strings.TrimSpace(item.Title)
	}
	if r, err := strconv.ParseFloat(strings.TrimSpace(item.MemberRating), 64); err == nil {
		e.Rating = r
	}
	if y, err := strconv.Atoi(strings.TrimSpace(item.FilmYear)); err == nil {
		e.Year = y
	}
	for _, g := range strings.Split(item.Genres, ",") {
		if g = strings.TrimSpace(g); g != "" {
			e.Genres = append(e.Genres, g)
		}
	}
	if t, err := time.Parse(time.RFC1123Z, strings.TrimSpace(item.PubDate)); err == nil {
		e.Published = t
	}
	return e
}
