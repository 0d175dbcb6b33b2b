// Package client talks to a remote analysis server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"aicluster/internal/model"
	"aicluster/internal/table"
)

var (
	ErrProcessing     = errors.New("analysis is still processing")
	ErrAnalysisFailed = errors.New("analysis failed")
	ErrNotFound       = errors.New("analysis not found")
)

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second)
	}
	return &Client{base, r}
}

// Submission is one analysis upload. Zero numeric fields and empty column
// names are left to the server defaults.
type Submission struct {
	TrainingFile   string
	AnalysisFile   string
	NumTrees       int
	Depth          int
	Iterations     int
	IDColumn       string
	OutColumn      string
	WithoutRawData bool
}

type submitResp struct {
	Key string `json:"key"`
}

type messageResp struct {
	Key     string          `json:"key"`
	State   int             `json:"state"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Forest  json.RawMessage `json:"forest"`
}

type predictResp struct {
	Prediction []model.Prediction `json:"prediction"`
}

// Submit uploads the tables and returns the analysis key.
func (c *Client) Submit(ctx context.Context, s Submission) (string, error) {
	if s.TrainingFile == "" {
		return "", errors.New("training file is required")
	}

	form := map[string]string{}
	if s.NumTrees > 0 {
		form["num_trees"] = strconv.Itoa(s.NumTrees)
	}
	if s.Depth > 0 {
		form["depth"] = strconv.Itoa(s.Depth)
	}
	if s.Iterations > 0 {
		form["iteration"] = strconv.Itoa(s.Iterations)
	}
	if s.IDColumn != "" {
		form["idcolumn"] = s.IDColumn
	}
	if s.OutColumn != "" {
		form["outcolumn"] = s.OutColumn
	}
	if s.WithoutRawData {
		form["without_rawdata"] = "true"
	}

	req := c.rest.R().
		SetContext(ctx).
		SetFile("training", s.TrainingFile).
		SetFormData(form)
	if s.AnalysisFile != "" {
		req.SetFile("analysis", s.AnalysisFile)
	}

	result := &submitResp{}
	errResp := &messageResp{}
	resp, err := req.SetResult(result).SetError(errResp).Post(c.base + "/analyses")
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("submit rejected: status %d: %s", resp.StatusCode(), errResp.Message)
	}
	if result.Key == "" {
		return "", fmt.Errorf("submit returned no key: %s", resp.String())
	}

	log.Info().Str("key", result.Key).Str("server", c.base).Msg("Analysis submitted")
	return result.Key, nil
}

// Retrieve fetches a finished analysis. It returns ErrProcessing while the
// analysis runs and ErrAnalysisFailed when it failed.
func (c *Client) Retrieve(ctx context.Context, key string) (*model.Artifact, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("id", key).
		Get(c.base + "/retrieve")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	body := resp.Body()
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case resp.IsError():
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}

	var msg messageResp
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(msg.Forest) == 0 {
		switch msg.Message {
		case "processing":
			return nil, ErrProcessing
		case "error":
			return nil, fmt.Errorf("%w: %s", ErrAnalysisFailed, msg.Error)
		default:
			return nil, fmt.Errorf("unexpected response: %s", resp.String())
		}
	}
	return model.Read(bytes.NewReader(body))
}

// Wait polls Retrieve every interval until the analysis is final or ctx is
// done.
func (c *Client) Wait(ctx context.Context, key string, interval time.Duration) (*model.Artifact, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a, err := c.Retrieve(ctx, key)
		if !errors.Is(err, ErrProcessing) {
			return a, err
		}
		log.Debug().Str("key", key).Msg("Analysis still processing")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Predict scores rows with the stored analysis.
func (c *Client) Predict(ctx context.Context, key string, rows []table.Row) ([]model.Prediction, error) {
	result := &predictResp{}
	errResp := &messageResp{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("id", key).
		SetBody(rows).
		SetResult(result).
		SetError(errResp).
		Post(c.base + "/predict")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case resp.StatusCode() == http.StatusConflict && errResp.Message == "processing":
		return nil, ErrProcessing
	case resp.StatusCode() == http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", ErrAnalysisFailed, errResp.Error)
	case resp.IsError():
		return nil, fmt.Errorf("predict rejected: status %d: %s", resp.StatusCode(), errResp.Message)
	}
	return result.Prediction, nil
}
