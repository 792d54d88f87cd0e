package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	braintrust "github.com/braintrustdata/braintrust-sdk-go"
	"github.com/braintrustdata/braintrust-sdk-go/eval"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	statusApproved = "approved"
	statusRejected = "rejected"
)

type evalInput struct {
	Name string         `json:"name"`
	Deal map[string]any `json:"deal"`
}

type evalOutput struct {
	DealID         int64   `json:"deal_id,omitempty"`
	Status         string  `json:"status,omitempty"`
	Feedback       *string `json:"feedback,omitempty"`
	ShortCircuited bool    `json:"short_circuited,omitempty"`
}

type rawCase struct {
	Input    evalInput  `json:"input"`
	Expected evalOutput `json:"expected"`
}

type config struct {
	APIURL         string
	CasesPath      string
	Project        string
	Experiment     string
	RequestTimeout time.Duration
	ReviewTimeout  time.Duration
	Parallelism    int
}

type evalRunner struct {
	cfg    config
	token  string
	client *http.Client
}

type dealResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type reviewResponse struct {
	Status   string  `json:"status"`
	Feedback *string `json:"feedback"`
}

func main() {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		fail(err)
	}

	if strings.TrimSpace(os.Getenv("BRAINTRUST_API_KEY")) == "" {
		fail(errors.New("BRAINTRUST_API_KEY is required"))
	}

	cases, err := loadCases(cfg.CasesPath)
	if err != nil {
		fail(err)
	}

	runner := &evalRunner{
		cfg:    cfg,
		client: &http.Client{},
	}

	if err := runner.healthCheck(ctx); err != nil {
		fail(err)
	}
	if err := runner.authenticate(ctx); err != nil {
		fail(err)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	bt, err := braintrust.New(
		tp,
		braintrust.WithProject(cfg.Project),
		braintrust.WithBlockingLogin(true),
	)
	if err != nil {
		fail(fmt.Errorf("failed to initialize Braintrust: %w", err))
	}

	evaluator := braintrust.NewEvaluator[evalInput, evalOutput](bt)

	result, err := evaluator.Run(ctx, eval.Opts[evalInput, evalOutput]{
		Experiment: cfg.Experiment,
		Dataset:    eval.NewDataset(cases),
		Task:       eval.T(runner.runCase),
		Scorers: []eval.Scorer[evalInput, evalOutput]{
			eval.NewScorer("verdict_agreement", scoreVerdictAgreement),
			eval.NewScorer("feedback_presence", scoreFeedbackPresence),
			eval.NewScorer("feedback_relevance", scoreFeedbackRelevance),
			eval.NewScorer("precondition_handling", scorePreconditionHandling),
		},
		Tags: []string{"deal-compliance", "review-api"},
		Metadata: map[string]any{
			"service":            "dealdesk",
			"api_url":            cfg.APIURL,
			"review_timeout_sec": int(cfg.ReviewTimeout.Seconds()),
		},
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		fail(fmt.Errorf("eval run failed: %w", err))
	}

	if runErr := result.Error(); runErr != nil {
		fail(fmt.Errorf("eval completed with errors: %w", runErr))
	}

	if link, err := result.Permalink(); err == nil && link != "" {
		fmt.Println("Braintrust report:", link)
	}

	fmt.Println(result.String())
}

func loadConfig() (config, error) {
	cfg := config{
		APIURL:         getenv("EVAL_API_URL", "http://localhost:8080"),
		CasesPath:      getenv("EVAL_CASES_PATH", "cases.json"),
		Project:        getenv("BRAINTRUST_PROJECT", "dealdesk"),
		Experiment:     getenv("EVAL_EXPERIMENT", "deal-compliance-review-eval"),
		RequestTimeout: time.Duration(getenvInt("EVAL_REQUEST_TIMEOUT_SEC", 20)) * time.Second,
		ReviewTimeout:  time.Duration(getenvInt("EVAL_REVIEW_TIMEOUT_SEC", 90)) * time.Second,
		Parallelism:    getenvInt("EVAL_PARALLELISM", 1),
	}

	if cfg.RequestTimeout <= 0 {
		return config{}, errors.New("EVAL_REQUEST_TIMEOUT_SEC must be > 0")
	}
	if cfg.ReviewTimeout <= 0 {
		return config{}, errors.New("EVAL_REVIEW_TIMEOUT_SEC must be > 0")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	return cfg, nil
}

func loadCases(path string) ([]eval.Case[evalInput, evalOutput], error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases file %s: %w", resolved, err)
	}

	var raw []rawCase
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cases file %s: %w", resolved, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cases file is empty: %s", resolved)
	}

	cases := make([]eval.Case[evalInput, evalOutput], 0, len(raw))
	for _, row := range raw {
		cases = append(cases, eval.Case[evalInput, evalOutput]{
			Input:    row.Input,
			Expected: row.Expected,
			Metadata: map[string]any{"name": row.Input.Name, "deal_type": row.Input.Deal["type"]},
		})
	}
	return cases, nil
}

func (r *evalRunner) runCase(ctx context.Context, input evalInput) (evalOutput, error) {
	dealID, err := r.createDeal(ctx, input.Deal)
	if err != nil {
		return evalOutput{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.ReviewTimeout)
	defer cancel()

	path := fmt.Sprintf("/api/deals/%d/review", dealID)
	var verdict reviewResponse
	code, err := r.doJSON(reqCtx, http.MethodPost, path, nil, &verdict)
	if err != nil {
		return evalOutput{}, err
	}
	if code != http.StatusOK && code != http.StatusBadRequest {
		return evalOutput{}, fmt.Errorf("review failed: deal=%d status=%d", dealID, code)
	}

	return evalOutput{
		DealID:         dealID,
		Status:         verdict.Status,
		Feedback:       verdict.Feedback,
		ShortCircuited: code == http.StatusBadRequest,
	}, nil
}

func (r *evalRunner) healthCheck(ctx context.Context) error {
	code, err := r.doJSON(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("health check returned status %d", code)
	}
	return nil
}

// authenticate registers a throwaway eval user and keeps its bearer token
// for every subsequent request.
func (r *evalRunner) authenticate(ctx context.Context) error {
	username := fmt.Sprintf("braintrust-eval-%d", time.Now().UnixNano())
	password := fmt.Sprintf("eval-%d-pass", time.Now().UnixNano())

	register := map[string]string{
		"username":  username,
		"full_name": "Braintrust Eval",
		"password":  password,
	}
	if code, err := r.doJSON(ctx, http.MethodPost, "/api/auth/register", register, nil); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	} else if code != http.StatusCreated {
		return fmt.Errorf("registration returned status %d", code)
	}

	var login struct {
		Token string `json:"token"`
	}
	credentials := map[string]string{"username": username, "password": password}
	if code, err := r.doJSON(ctx, http.MethodPost, "/api/auth/login", credentials, &login); err != nil {
		return fmt.Errorf("login failed: %w", err)
	} else if code != http.StatusOK {
		return fmt.Errorf("login returned status %d", code)
	}
	if login.Token == "" {
		return errors.New("login response missing token")
	}

	r.token = login.Token
	return nil
}

func (r *evalRunner) createDeal(ctx context.Context, deal map[string]any) (int64, error) {
	var out dealResponse
	code, err := r.doJSON(ctx, http.MethodPost, "/api/deals", deal, &out)
	if err != nil {
		return 0, fmt.Errorf("create deal failed: %w", err)
	}
	if code != http.StatusCreated {
		return 0, fmt.Errorf("create deal returned status %d", code)
	}
	if out.ID == 0 {
		return 0, errors.New("create deal response missing id")
	}
	return out.ID, nil
}

func (r *evalRunner) doJSON(ctx context.Context, method, path string, in any, out any) (int, error) {
	reqCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimRight(r.cfg.APIURL, "/")+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode failed: %w (payload=%s)", err, string(payload))
		}
	}
	return resp.StatusCode, nil
}

func scoreVerdictAgreement(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	expected := normalizeString(tr.Expected.Status)
	if expected == "" {
		expected = statusApproved
	}
	if normalizeString(tr.Output.Status) == expected {
		return eval.S(1), nil
	}
	return eval.S(0), nil
}

// scoreFeedbackPresence checks the invariant that a rejection always carries
// feedback and an approval never does.
func scoreFeedbackPresence(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	switch normalizeString(tr.Output.Status) {
	case statusRejected:
		if tr.Output.Feedback != nil && strings.TrimSpace(*tr.Output.Feedback) != "" {
			return eval.S(1), nil
		}
		return eval.S(0), nil
	case statusApproved:
		if tr.Output.Feedback == nil || strings.TrimSpace(*tr.Output.Feedback) == "" {
			return eval.S(1), nil
		}
		return eval.S(0), nil
	default:
		return eval.S(0), nil
	}
}

// scoreFeedbackRelevance gives partial credit for each expected keyword that
// appears in the rejection feedback. Cases without expected feedback score 1.
func scoreFeedbackRelevance(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	if tr.Expected.Feedback == nil || strings.TrimSpace(*tr.Expected.Feedback) == "" {
		return eval.S(1), nil
	}
	if tr.Output.Feedback == nil {
		return eval.S(0), nil
	}

	actual := strings.ToLower(*tr.Output.Feedback)
	keywords := strings.Fields(strings.ToLower(*tr.Expected.Feedback))
	if len(keywords) == 0 {
		return eval.S(1), nil
	}

	matched := 0
	for _, kw := range keywords {
		if strings.Contains(actual, kw) {
			matched++
		}
	}
	return eval.S(float64(matched) / float64(len(keywords))), nil
}

func scorePreconditionHandling(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	if tr.Output.ShortCircuited == tr.Expected.ShortCircuited {
		return eval.S(1), nil
	}
	return eval.S(0), nil
}

func normalizeString(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func resolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("path not found: %s", path)
	}

	candidates := []string{
		path,
		filepath.Join("..", "..", path),
	}

	for _, c := range candidates {
		absPath, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return absPath, nil
		}
	}

	return "", fmt.Errorf("path not found: %s", path)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out int
	if _, err := fmt.Sscanf(v, "%d", &out); err != nil {
		return fallback
	}
	return out
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
