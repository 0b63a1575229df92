package sources

import (
	"context"
	"encoding/json"
	"net/http"

	"labjobs/common/telemetry"
	"labjobs/internal/errors"
	"labjobs/internal/models"

	"github.com/go-resty/resty/v2"
)

const (
	AshbyBaseURL = "https://jobs.ashbyhq.com"

	ashbyOperation = "ApiJobBoardWithTeams"
	ashbyQuery     = `query ApiJobBoardWithTeams($organizationHostedJobsPageName: String!) {
  jobBoard: jobBoardWithTeams(organizationHostedJobsPageName: $organizationHostedJobsPageName) {
    teams { id name parentTeamId }
    jobPostings { id title teamId locationName employmentType compensationTierSummary }
  }
}`
)

var tracer = telemetry.GetTracer("labjobs/sources")

// AshbyAdapter reads a hosted Ashby job board through its public GraphQL API.
type AshbyAdapter struct {
	BaseURL      string
	Organization string
	client       *resty.Client
}

func NewAshbyAdapter(client *resty.Client, organization string) *AshbyAdapter {
	return &AshbyAdapter{
		BaseURL:      AshbyBaseURL,
		Organization: organization,
		client:       client,
	}
}

type ashbyRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type ashbyResponse struct {
	Data struct {
		JobBoard *struct {
			Teams []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"teams"`
			JobPostings []struct {
				ID                      string  `json:"id"`
				Title                   string  `json:"title"`
				TeamID                  string  `json:"teamId"`
				LocationName            *string `json:"locationName"`
				EmploymentType          *string `json:"employmentType"`
				CompensationTierSummary *string `json:"compensationTierSummary"`
			} `json:"jobPostings"`
		} `json:"jobBoard"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *AshbyAdapter) Fetch(ctx context.Context) (models.RawPayload, error) {
	ctx, span := tracer.Start(ctx, "AshbyAdapter.Fetch")
	defer span.End()
	span.SetAttributes(telemetry.String("ashby.organization", a.Organization))

	req := a.client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("apollographql-client-name", "frontend_non_user").
		SetHeader("apollographql-client-version", "0.1.0").
		SetQueryParam("op", ashbyOperation).
		SetBody(ashbyRequest{
			OperationName: ashbyOperation,
			Variables:     map[string]any{"organizationHostedJobsPageName": a.Organization},
			Query:         ashbyQuery,
		})

	payload, err := execute(ctx, req, http.MethodPost, a.BaseURL+"/api/non-user-graphql")
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(telemetry.Int("http.response_size", len(payload)))
	return payload, nil
}

func (a *AshbyAdapter) Transform(payload models.RawPayload) ([]models.NormalizedPosting, error) {
	var resp ashbyResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, errors.Parse("decoding ashby response", err)
	}
	board := resp.Data.JobBoard
	if board == nil {
		msg := "ashby response has no jobBoard"
		if len(resp.Errors) > 0 {
			msg += ": " + resp.Errors[0].Message
		}
		return nil, errors.Parse(msg, nil)
	}

	teams := make(map[string]string, len(board.Teams))
	for _, team := range board.Teams {
		teams[team.ID] = team.Name
	}

	postings := make([]models.NormalizedPosting, 0, len(board.JobPostings))
	for _, job := range board.JobPostings {
		postings = append(postings, models.NormalizedPosting{
			ExternalID:     job.ID,
			Title:          job.Title,
			Team:           teams[job.TeamID],
			Location:       deref(job.LocationName),
			EmploymentType: deref(job.EmploymentType),
			Compensation:   deref(job.CompensationTierSummary),
		})
	}
	return postings, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
