package service

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/internal/repository"
)

func setupSessionTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.FactCheckSession{}, &models.CandidatePaper{}, &models.PaperAnalysis{}))
	return db
}

func newSessionServiceForTest(t *testing.T, redisClient *redis.Client) SessionService {
	t.Helper()
	repo := repository.NewSessionRepository(setupSessionTestDB(t))
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewSessionService(repo, redisClient, time.Minute, validate, 5000, testLogger())
}

func sampleSessionRequest() dto.SessionCreateRequest {
	score := 0.91
	citations := 12
	return dto.SessionCreateRequest{
		Statement: "coffee reduces mortality",
		Keywords:  []string{"coffee", "mortality"},
		FinalVerdict: &models.FinalVerdict{
			FinalVerdict:    models.VerdictMostlyTrue,
			ConfidenceScore: 70,
			Summary:         "largely supported",
			Reasoning:       "most cohorts agree",
		},
		Papers: []dto.Paper{
			{
				ExternalID:     "openalex:W1",
				Title:          "Coffee and mortality",
				Authors:        []string{"Doe"},
				Summary:        strPtr("a cohort study"),
				RelevanceScore: &score,
				CitedByCount:   &citations,
				PreEvaluation:  &dto.PreEvaluation{Verdict: models.PreEvalSupports, Summary: "supports", Snippet: "cohort study"},
			},
			{Title: "Untitled preprint"},
		},
		AnalysisResults: map[string]dto.AnalysisOutcome{
			"openalex:W1": {
				PDFURL:         strPtr("https://example.org/w1.pdf"),
				AnalysisMethod: models.MethodPDFDirectURL,
				Analysis: &dto.PaperAnalysisResult{
					SupportLevel: models.SupportSupports,
					Confidence:   85,
					Summary:      "full text supports",
					KeyFindings:  []string{"dose response"},
				},
			},
		},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	svc := newSessionServiceForTest(t, nil)

	created, err := svc.Create(context.Background(), sampleSessionRequest())
	require.NoError(t, err)
	require.NotZero(t, created.SessionID)
	require.NotEmpty(t, created.ShareableID)
	require.NotContains(t, created.ShareableID, "-")

	loaded, err := svc.Get(context.Background(), created.ShareableID)
	require.NoError(t, err)
	require.Equal(t, "coffee reduces mortality", loaded.Statement)
	require.Equal(t, []string{"coffee", "mortality"}, loaded.Keywords)
	require.NotNil(t, loaded.FinalVerdict)
	require.Equal(t, models.VerdictMostlyTrue, loaded.FinalVerdict.FinalVerdict)
	require.Len(t, loaded.Papers, 2)

	first := loaded.Papers[0]
	require.Equal(t, "openalex:W1", first.ExternalID)
	require.NotNil(t, first.PreEvaluation)
	require.Equal(t, models.PreEvalSupports, first.PreEvaluation.Verdict)
	require.NotNil(t, first.Analysis)
	require.Equal(t, models.MethodPDFDirectURL, first.Analysis.AnalysisMethod)
	require.NotNil(t, first.Analysis.Analysis)
	require.Equal(t, 85, first.Analysis.Analysis.Confidence)

	// Missing external ids get a per-index synthetic placeholder, and papers
	// without an analysis omit the analysis node entirely.
	second := loaded.Papers[1]
	require.Equal(t, "paper:unknown:1", second.ExternalID)
	require.Nil(t, second.Analysis)
}

func TestSessionStatementTruncatedAtCap(t *testing.T) {
	repo := repository.NewSessionRepository(setupSessionTestDB(t))
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewSessionService(repo, nil, time.Minute, validate, 20, testLogger())

	req := sampleSessionRequest()
	req.Statement = strings.Repeat("я", 25)

	created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	loaded, err := svc.Get(context.Background(), created.ShareableID)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("я", 20), loaded.Statement)
}

func TestSessionGetUnknownID(t *testing.T) {
	svc := newSessionServiceForTest(t, nil)

	_, err := svc.Get(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Get(context.Background(), "  ")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionGetServesFromCache(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	svc := newSessionServiceForTest(t, redisClient)

	created, err := svc.Create(context.Background(), sampleSessionRequest())
	require.NoError(t, err)

	first, err := svc.Get(context.Background(), created.ShareableID)
	require.NoError(t, err)

	require.True(t, server.Exists("paperproof:session:"+created.ShareableID))

	second, err := svc.Get(context.Background(), created.ShareableID)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAttachAnalysesResavesTreeAndInvalidatesCache(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	svc := newSessionServiceForTest(t, redisClient)

	req := sampleSessionRequest()
	req.AnalysisResults = nil
	created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	// Warm the cache, then attach an analysis.
	_, err = svc.Get(context.Background(), created.ShareableID)
	require.NoError(t, err)

	err = svc.AttachAnalyses(context.Background(), created.ShareableID, map[string]dto.AnalysisOutcome{
		"openalex:W1": {
			AnalysisMethod: models.MethodAbstractFallback,
			Analysis:       &dto.PaperAnalysisResult{SupportLevel: models.SupportNeutral, Confidence: 40, Summary: "abstract only"},
		},
	})
	require.NoError(t, err)

	require.False(t, server.Exists("paperproof:session:"+created.ShareableID))

	loaded, err := svc.Get(context.Background(), created.ShareableID)
	require.NoError(t, err)
	require.Len(t, loaded.Papers, 2)
	require.NotNil(t, loaded.Papers[0].Analysis)
	require.Equal(t, models.MethodAbstractFallback, loaded.Papers[0].Analysis.AnalysisMethod)
	require.Nil(t, loaded.Papers[1].Analysis)
}

func TestAttachAnalysesUnknownSession(t *testing.T) {
	svc := newSessionServiceForTest(t, nil)

	err := svc.AttachAnalyses(context.Background(), "missing", map[string]dto.AnalysisOutcome{})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionSanitizesConfidenceAndStrings(t *testing.T) {
	svc := newSessionServiceForTest(t, nil)

	req := sampleSessionRequest()
	req.Keywords = []string{" coffee ", "", "  "}
	req.AnalysisResults["openalex:W1"].Analysis.Confidence = 250

	created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	loaded, err := svc.Get(context.Background(), created.ShareableID)
	require.NoError(t, err)
	require.Equal(t, []string{"coffee"}, loaded.Keywords)
	require.Equal(t, 100, loaded.Papers[0].Analysis.Analysis.Confidence)
}
