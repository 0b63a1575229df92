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
	GreenhouseBaseURL = "https://boards-api.greenhouse.io"

	// The departments endpoint carries neither employment type nor pay.
	greenhouseEmploymentType = "FullTime"
)

// GreenhouseAdapter reads a Greenhouse job board grouped by department.
type GreenhouseAdapter struct {
	BaseURL string
	Board   string
	client  *resty.Client
}

func NewGreenhouseAdapter(client *resty.Client, board string) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		BaseURL: GreenhouseBaseURL,
		Board:   board,
		client:  client,
	}
}

type greenhouseResponse struct {
	Departments *[]struct {
		Name string `json:"name"`
		Jobs []struct {
			ID       json.Number `json:"id"`
			Title    string      `json:"title"`
			Location *struct {
				Name string `json:"name"`
			} `json:"location"`
		} `json:"jobs"`
	} `json:"departments"`
}

func (g *GreenhouseAdapter) Fetch(ctx context.Context) (models.RawPayload, error) {
	ctx, span := tracer.Start(ctx, "GreenhouseAdapter.Fetch")
	defer span.End()
	span.SetAttributes(telemetry.String("greenhouse.board", g.Board))

	url := g.BaseURL + "/v1/boards/" + g.Board + "/departments"
	payload, err := execute(ctx, g.client.R(), http.MethodGet, url)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(telemetry.Int("http.response_size", len(payload)))
	return payload, nil
}

func (g *GreenhouseAdapter) Transform(payload models.RawPayload) ([]models.NormalizedPosting, error) {
	var resp greenhouseResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, errors.Parse("decoding greenhouse response", err)
	}
	if resp.Departments == nil {
		return nil, errors.Parse("greenhouse response has no departments", nil)
	}

	var postings []models.NormalizedPosting
	for _, dept := range *resp.Departments {
		for _, job := range dept.Jobs {
			p := models.NormalizedPosting{
				ExternalID:     job.ID.String(),
				Title:          job.Title,
				Team:           dept.Name,
				EmploymentType: greenhouseEmploymentType,
			}
			if job.Location != nil {
				p.Location = job.Location.Name
			}
			postings = append(postings, p)
		}
	}
	return postings, nil
}
