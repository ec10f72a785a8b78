package rlm

import (
	"context"
	"log/slog"
	"time"
)

// Run statuses form a closed set; the calling gateway branches on them.
const (
	StatusOK          = "ok"
	StatusRateLimited = "rate_limited"
	StatusSkipped     = "skipped"
	StatusError       = "error"
)

const rateLimitedMessage = "Provider quota has been reached. Please try again in a few minutes."

// Plan is one resolved invocation: the primary request plus the retry and
// fallback policy around it.
type Plan struct {
	Request       Request
	FallbackModel string

	// MaxRetries is the total number of primary-model attempts.
	MaxRetries int
	Timeout    time.Duration
	Backoff    time.Duration
}

// Outcome is the terminal result of the invocation state machine.
type Outcome struct {
	Status         string
	Response       string
	Usage          *UsageSummary
	Attempts       int
	ModelUsed      string
	SubModelUsed   string
	FallbackUsed   bool
	FallbackReason string
	ErrorMessage   string
}

// Invoker drives the engine through the Primary → Retry(n) → Fallback →
// Terminal state machine. Transitions are triggered by classified failure
// kinds, not raw error values.
type Invoker struct {
	Engine   Engine
	Classify Classifier
	Trace    *TraceLog
	Logger   *slog.Logger

	// Sleep is replaceable in tests to avoid real backoff waits.
	Sleep func(time.Duration)
}

// NewInvoker creates an Invoker with the default classifier.
func NewInvoker(engine Engine) *Invoker {
	return &Invoker{
		Engine:   engine,
		Classify: DefaultClassifier,
		Logger:   slog.Default(),
		Sleep:    time.Sleep,
	}
}

// Run executes the plan. On transient failure it waits backoff*attempt and
// retries the primary models, up to MaxRetries attempts total. A hard failure
// aborts the primary loop immediately. After the primary attempts, one
// fallback attempt substitutes the fallback model for both roles, unless the
// last failure was a rate limit, which is terminal as rate_limited.
func (v *Invoker) Run(ctx context.Context, plan Plan) Outcome {
	if plan.Request.Context == "" && len(plan.Request.ContextChunks) == 0 {
		return Outcome{Status: StatusSkipped, Response: "Not enough history to analyze."}
	}

	var (
		lastErr  error
		lastKind FailureKind
		attempts int
	)

	for attempt := 1; attempt <= plan.MaxRetries; attempt++ {
		attempts = attempt
		res, err := v.attempt(ctx, plan.Request, attempt, plan.Timeout)
		if err == nil {
			return v.success(plan.Request, res, attempts, false, "")
		}

		lastErr = err
		lastKind = v.Classify(err)
		v.Logger.Debug("engine attempt failed",
			"attempt", attempt, "model", plan.Request.RootModel, "kind", lastKind.String(), "error", err)

		if lastKind == FailureHard {
			break
		}
		if attempt < plan.MaxRetries {
			v.Sleep(time.Duration(attempt) * plan.Backoff)
		}
	}

	if lastKind == FailureRateLimit {
		return Outcome{
			Status:       StatusRateLimited,
			Response:     rateLimitedMessage,
			Attempts:     attempts,
			ModelUsed:    plan.Request.RootModel,
			SubModelUsed: plan.Request.SubModel,
			ErrorMessage: lastErr.Error(),
		}
	}

	// Fallback: one attempt with the fallback model in both roles.
	fbReq := plan.Request
	fbReq.RootModel = plan.FallbackModel
	fbReq.SubModel = plan.FallbackModel
	attempts++

	res, err := v.attempt(ctx, fbReq, attempts, plan.Timeout)
	if err == nil {
		return v.success(fbReq, res, attempts, true, lastErr.Error())
	}

	if v.Classify(err) == FailureRateLimit {
		return Outcome{
			Status:         StatusRateLimited,
			Response:       rateLimitedMessage,
			Attempts:       attempts,
			ModelUsed:      fbReq.RootModel,
			SubModelUsed:   fbReq.SubModel,
			FallbackUsed:   true,
			FallbackReason: lastErr.Error(),
			ErrorMessage:   err.Error(),
		}
	}

	return Outcome{
		Status:         StatusError,
		Attempts:       attempts,
		ModelUsed:      fbReq.RootModel,
		SubModelUsed:   fbReq.SubModel,
		FallbackUsed:   true,
		FallbackReason: lastErr.Error(),
		ErrorMessage:   err.Error(),
	}
}

func (v *Invoker) attempt(ctx context.Context, req Request, attempt int, timeout time.Duration) (*Result, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := v.Engine.Completion(attemptCtx, req)
	elapsed := time.Since(start)

	rec := TraceRecord{
		Model:     req.RootModel,
		SubModel:  req.SubModel,
		Attempt:   attempt,
		Outcome:   "ok",
		ElapsedMS: elapsed.Milliseconds(),
	}
	if err != nil {
		rec.Outcome = v.Classify(err).String()
		rec.Error = err.Error()
	}
	v.Trace.Append(rec)

	return res, err
}

func (v *Invoker) success(req Request, res *Result, attempts int, fallback bool, reason string) Outcome {
	return Outcome{
		Status:         StatusOK,
		Response:       res.Response,
		Usage:          res.Usage,
		Attempts:       attempts,
		ModelUsed:      req.RootModel,
		SubModelUsed:   req.SubModel,
		FallbackUsed:   fallback,
		FallbackReason: reason,
	}
}
