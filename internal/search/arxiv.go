package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/models"
)

// ArxivClient is the secondary paper source, consulted once when OpenAlex
// yields nothing through the whole query ladder. The arXiv API speaks Atom.
type ArxivClient struct {
	parser  *gofeed.Parser
	baseURL string
	logger  zerolog.Logger
}

// NewArxivClient builds an arXiv Atom client.
func NewArxivClient(baseURL string, logger zerolog.Logger) *ArxivClient {
	if baseURL == "" {
		baseURL = "https://export.arxiv.org/api/query"
	}

	return &ArxivClient{
		parser:  gofeed.NewParser(),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With().Str("component", "arxiv_client").Logger(),
	}
}

// Search queries arXiv across all fields and maps entries into the shared
// paper shape. arXiv has no citation counts or relevance scores; those fields
// stay null.
func (c *ArxivClient) Search(ctx context.Context, query string, opts Options) (Result, error) {
	maxResults := opts.PerPage
	if maxResults <= 0 {
		maxResults = 20
	}

	endpoint := fmt.Sprintf("%s?search_query=%s&max_results=%d&sortBy=relevance",
		c.baseURL, url.QueryEscape("all:"+query), maxResults)

	feed, err := c.parser.ParseURLWithContext(endpoint, ctx)
	if err != nil {
		return Result{}, fmt.Errorf("arxiv query: %w", err)
	}

	papers := make([]dto.Paper, 0, len(feed.Items))
	for i, item := range feed.Items {
		papers = append(papers, mapArxivEntry(item, i))
	}

	c.logger.Debug().Str("query", query).Int("count", len(papers)).Msg("arxiv search completed")

	return Result{Papers: papers, TotalCount: len(papers)}, nil
}

func mapArxivEntry(item *gofeed.Item, index int) dto.Paper {
	externalID := item.GUID
	if externalID == "" {
		externalID = item.Link
	}
	if externalID == "" {
		externalID = fmt.Sprintf("arxiv:unknown:%d", index)
	}

	authors := make([]string, 0, len(item.Authors))
	for _, author := range item.Authors {
		if author != nil && author.Name != "" {
			authors = append(authors, author.Name)
		}
	}

	summary := strings.TrimSpace(strings.Join(strings.Fields(item.Description), " "))
	if summary == "" {
		summary = NoAbstract
	}

	paper := dto.Paper{
		ExternalID: externalID,
		Title:      strings.TrimSpace(item.Title),
		Authors:    authors,
		Summary:    &summary,
		Links:      []models.PaperLink{},
	}

	if item.PublishedParsed != nil {
		published := item.PublishedParsed.Format(time.DateOnly)
		paper.Published = &published
	}

	if item.Link != "" {
		paper.Links = append(paper.Links, models.PaperLink{Href: item.Link, MimeType: "text/html", Relation: "alternate"})

		// Abstract pages link as /abs/<id>; the PDF lives at /pdf/<id>.
		if pdfURL := strings.Replace(item.Link, "/abs/", "/pdf/", 1); pdfURL != item.Link {
			paper.Links = append(paper.Links, models.PaperLink{Href: pdfURL, MimeType: "application/pdf", Relation: "related"})
			paper.PDFURL = &pdfURL
		}
	}

	journal := "arXiv"
	paper.JournalName = &journal

	return paper
}
