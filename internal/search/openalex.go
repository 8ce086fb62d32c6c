package search

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/models"
)

// NoAbstract is the sentinel stored when a work carries no usable abstract.
// The pre-evaluator short-circuits on it.
const NoAbstract = "No abstract available"

// Options tune a single works query.
type Options struct {
	PerPage int
	SortBy  string
	Filters map[string]string
}

// Result is one page of ranked works.
type Result struct {
	Papers     []dto.Paper
	TotalCount int
}

// PaperSearcher retrieves candidate papers for a boolean query string.
type PaperSearcher interface {
	Search(ctx context.Context, query string, opts Options) (Result, error)
}

// OpenAlexClient queries the OpenAlex works endpoint.
type OpenAlexClient struct {
	httpClient *http.Client
	baseURL    string
	mailto     string
	limiter    *rate.Limiter
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
}

// OpenAlexConfig configures the client. Mailto joins OpenAlex's polite pool
// when set.
type OpenAlexConfig struct {
	BaseURL    string
	Mailto     string
	RatePerSec float64
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// NewOpenAlexClient builds a rate-limited OpenAlex client.
func NewOpenAlexClient(cfg OpenAlexConfig) *OpenAlexClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openalex.org"
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &OpenAlexClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		mailto:     cfg.Mailto,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     cfg.Logger.With().Str("component", "openalex_client").Logger(),
	}
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	DOI                   string           `json:"doi"`
	PublicationDate       string           `json:"publication_date"`
	RelevanceScore        *float64         `json:"relevance_score"`
	CitedByCount          *int             `json:"cited_by_count"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation struct {
		LandingPageURL string `json:"landing_page_url"`
		PDFURL         string `json:"pdf_url"`
		Source         struct {
			DisplayName      string `json:"display_name"`
			HostOrganization string `json:"host_organization_name"`
		} `json:"source"`
	} `json:"primary_location"`
	OpenAccess struct {
		IsOA  bool   `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
}

type openAlexResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []openAlexWork `json:"results"`
}

// Search runs one works query. Transport and non-2xx failures propagate; the
// caller owns the query fallback ladder.
func (c *OpenAlexClient) Search(ctx context.Context, query string, opts Options) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	values := url.Values{}
	values.Set("search", query)
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	values.Set("per-page", fmt.Sprintf("%d", perPage))
	if opts.SortBy != "" {
		values.Set("sort", opts.SortBy)
	}
	if len(opts.Filters) > 0 {
		pairs := make([]string, 0, len(opts.Filters))
		for key, value := range opts.Filters {
			pairs = append(pairs, fmt.Sprintf("%s:%s", key, value))
		}
		sort.Strings(pairs)
		values.Set("filter", strings.Join(pairs, ","))
	}
	if c.mailto != "" {
		values.Set("mailto", c.mailto)
	}

	endpoint := fmt.Sprintf("%s/works?%s", c.baseURL, values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("create openalex request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("openalex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("openalex returned status %d", resp.StatusCode)
	}

	var payload openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode openalex response: %w", err)
	}

	papers := make([]dto.Paper, 0, len(payload.Results))
	for i, work := range payload.Results {
		papers = append(papers, c.mapWork(work, i))
	}

	c.logger.Debug().Str("query", query).Int("count", payload.Meta.Count).Msg("openalex search completed")

	return Result{Papers: papers, TotalCount: payload.Meta.Count}, nil
}

func (c *OpenAlexClient) mapWork(work openAlexWork, index int) dto.Paper {
	title := work.Title
	if title == "" {
		title = work.DisplayName
	}

	externalID := work.ID
	if externalID == "" {
		externalID = fmt.Sprintf("openalex:unknown:%d", index)
	}

	authors := make([]string, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		if name := strings.TrimSpace(authorship.Author.DisplayName); name != "" {
			authors = append(authors, name)
		}
	}

	abstract := c.reconstructAbstract(work.AbstractInvertedIndex)

	paper := dto.Paper{
		ExternalID:     externalID,
		Title:          title,
		Authors:        authors,
		Summary:        &abstract,
		RelevanceScore: work.RelevanceScore,
		CitedByCount:   work.CitedByCount,
		Links:          []models.PaperLink{},
	}

	if work.PublicationDate != "" {
		published := work.PublicationDate
		paper.Published = &published
	}
	if work.DOI != "" {
		doi := work.DOI
		paper.DOI = &doi
	}
	if name := work.PrimaryLocation.Source.DisplayName; name != "" {
		journal := name
		paper.JournalName = &journal
	}
	if org := work.PrimaryLocation.Source.HostOrganization; org != "" {
		publisher := org
		paper.Publisher = &publisher
	}

	if href := work.PrimaryLocation.LandingPageURL; href != "" {
		paper.Links = append(paper.Links, models.PaperLink{Href: href, MimeType: "text/html", Relation: "alternate"})
	}
	if href := work.PrimaryLocation.PDFURL; href != "" {
		paper.Links = append(paper.Links, models.PaperLink{Href: href, MimeType: "application/pdf", Relation: "related"})
		pdfURL := href
		paper.PDFURL = &pdfURL
	}
	if href := work.OpenAccess.OAURL; href != "" && paper.PDFURL == nil {
		paper.Links = append(paper.Links, models.PaperLink{Href: href, MimeType: "application/pdf", Relation: "related"})
		pdfURL := href
		paper.PDFURL = &pdfURL
	}

	return paper
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's word to
// positions inverted index: positions ascending, words joined with single
// spaces. An empty or malformed index yields the NoAbstract sentinel.
func (c *OpenAlexClient) reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return NoAbstract
	}

	type positioned struct {
		position int
		word     string
	}

	var words []positioned
	for word, positions := range index {
		for _, position := range positions {
			words = append(words, positioned{position: position, word: word})
		}
	}

	if len(words) == 0 {
		return NoAbstract
	}

	sort.Slice(words, func(i, j int) bool { return words[i].position < words[j].position })

	parts := make([]string, 0, len(words))
	for _, entry := range words {
		parts = append(parts, entry.word)
	}

	// OpenAlex abstracts occasionally carry JATS markup; strip it.
	cleaned := html.UnescapeString(c.sanitizer.Sanitize(strings.Join(parts, " ")))
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return NoAbstract
	}

	return cleaned
}
