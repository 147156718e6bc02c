// Package rating invokes the external scoring process and applies the
// ingestion quality gate over its result.
package rating

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrRatingProcess covers a non-zero exit, a timeout, or unparseable
// output of the scoring process. Always reported, never defaulted.
var ErrRatingProcess = errors.New("rating process failed")

// GateThreshold is the fixed minimum every gating sub-score must meet.
const GateThreshold = 0.5

// Record is the parsed output of one scoring run.
type Record struct {
	NetScore             float64
	BusFactor            float64
	Correctness          float64
	RampUp               float64
	ResponsiveMaintainer float64
	LicenseScore         float64
	GoodPinningPractice  float64
	PullRequest          float64
}

// Rater is the contract consumed by the ingestion orchestrator and the
// on-demand rate operation.
type Rater interface {
	Rate(ctx context.Context, url string) (*Record, error)
}

// Engine runs the scoring CLI as a child process with the URL as its sole
// argument and parses its stdout.
type Engine struct {
	Bin     string
	Timeout time.Duration
}

// NewEngine builds an Engine for the given scorer binary.
func NewEngine(bin string) *Engine {
	return &Engine{Bin: bin, Timeout: 60 * time.Second}
}

// Rate scores the URL. The child is always joined before return; a
// deadline is enforced even when the caller's context has none.
func (e *Engine) Rate(ctx context.Context, url string) (*Record, error) {
	bin, err := exec.LookPath(e.Bin)
	if err != nil {
		return nil, fmt.Errorf("%w: scorer not found on PATH: %v", ErrRatingProcess, err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		cctx, cancel := context.WithTimeout(ctx, e.Timeout)
		defer cancel()
		ctx = cctx
	}

	cmd := exec.CommandContext(ctx, bin, url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	log.Printf("[rating] exec: %s %s", bin, url)
	runErr := cmd.Run()
	log.Printf("[rating] finished in %s (bytes=%d)", time.Since(start), stdout.Len())

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrRatingProcess, ctx.Err())
		}
		var ee *exec.ExitError
		if errors.As(runErr, &ee) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = fmt.Sprintf("exit code %d", ee.ExitCode())
			}
			return nil, fmt.Errorf("%w: %s", ErrRatingProcess, msg)
		}
		return nil, fmt.Errorf("%w: %v", ErrRatingProcess, runErr)
	}

	return parseScores(stdout.Bytes())
}

// score tolerates both bare numbers and quoted numbers; the scorer prints
// formatted strings like "0.7".
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*s = score(v)
	return nil
}

func parseScores(out []byte) (*Record, error) {
	var body struct {
		NetScore             score `json:"NET_SCORE"`
		BusFactor            score `json:"BUS_FACTOR_SCORE"`
		Correctness          score `json:"CORRECTNESS_SCORE"`
		RampUp               score `json:"RAMP_UP_SCORE"`
		ResponsiveMaintainer score `json:"RESPONSIVE_MAINTAINER_SCORE"`
		License              score `json:"LICENSE_SCORE"`
		Version              score `json:"VERSION_SCORE"`
		CodeReviewed         score `json:"CODE_REVIEWED_PERCENTAGE"`
	}
	if err := json.Unmarshal(out, &body); err != nil {
		return nil, fmt.Errorf("%w: unparseable output: %v", ErrRatingProcess, err)
	}
	return &Record{
		NetScore:             float64(body.NetScore),
		BusFactor:            float64(body.BusFactor),
		Correctness:          float64(body.Correctness),
		RampUp:               float64(body.RampUp),
		ResponsiveMaintainer: float64(body.ResponsiveMaintainer),
		LicenseScore:         float64(body.License),
		GoodPinningPractice:  float64(body.Version),
		PullRequest:          float64(body.CodeReviewed),
	}, nil
}

// PassesGate is the pure ingestion-gate predicate: all eight gating
// sub-scores must meet the threshold. Correctness participates twice,
// matching the scorer's published gate contract.
func (r *Record) PassesGate() bool {
	checks := []float64{
		r.BusFactor,
		r.Correctness,
		r.Correctness,
		r.RampUp,
		r.ResponsiveMaintainer,
		r.LicenseScore,
		r.GoodPinningPractice,
		r.PullRequest,
	}
	for _, v := range checks {
		if v < GateThreshold {
			return false
		}
	}
	return true
}
