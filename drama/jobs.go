package drama

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/BaSui01/drama/internal/ctxkeys"
	"github.com/BaSui01/drama/llm"
	"github.com/BaSui01/drama/persistence"
	"github.com/BaSui01/drama/prompt"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// JobStatus tracks a job through the in-memory queue.
type JobStatus string

const (
	JobNew       JobStatus = "new"
	JobScheduled JobStatus = "scheduled"
	JobRunning   JobStatus = "running"
	JobRun       JobStatus = "run"
	JobDone      JobStatus = "done"
)

// Job wraps one inference for one context. Jobs live in the queue only
// while in flight.
type Job struct {
	ID        string
	Status    JobStatus
	Context   *Context
	Payload   *llm.Job
	CreatedAt time.Time
}

// jobInput is a rendered prompt or, in chat mode, a message list.
type jobInput struct {
	Prompt   string
	Messages []prompt.Turn
}

// PushJob queues a new job for dctx.
func (e *Engine) PushJob(dctx *Context, payload *llm.Job) *Job {
	if dctx == nil {
		dctx = &Context{}
	}
	if payload == nil {
		payload = &llm.Job{ModelConfig: e.cfg.Model.Clone()}
	}
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobNew,
		Context:   dctx,
		Payload:   payload,
		CreatedAt: e.clock(),
	}
	payload.ID = job.ID
	e.jobs = append(e.jobs, job)
	e.logger.Debug("job queued", zap.String("job_id", job.ID), zap.String("chat_id", dctx.ChatID))
	return job
}

// SetJobStatus updates the status of a queued job.
func (e *Engine) SetJobStatus(id string, status JobStatus) bool {
	for _, j := range e.jobs {
		if j.ID == id {
			j.Status = status
			return true
		}
	}
	return false
}

// JobsByStatus returns the queued jobs with status, newest first.
func (e *Engine) JobsByStatus(status JobStatus) []*Job {
	var out []*Job
	for _, j := range e.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// RemoveJob drops a job from the queue.
func (e *Engine) RemoveJob(id string) {
	for i, j := range e.jobs {
		if j.ID == id {
			e.jobs = append(e.jobs[:i], e.jobs[i+1:]...)
			return
		}
	}
}

func (e *Engine) newJob(dctx *Context, model llm.ModelConfig, input jobInput) *Job {
	return e.PushJob(dctx, &llm.Job{
		Prompt:      input.Prompt,
		Messages:    input.Messages,
		ModelConfig: model,
	})
}

// RunJob submits a queued job, merges the usage into its context and the
// token counters and logs the prompt. The job leaves the queue either way.
func (e *Engine) RunJob(ctx context.Context, job *Job) (*llm.Response, error) {
	defer e.RemoveJob(job.ID)

	dctx := job.Context
	payload := job.Payload
	payload.ID = job.ID
	payload.Preset = dctx.Action
	payload.ChatID = dctx.ChatID
	payload.SituationID = dctx.Situation
	payload.InteractionID = dctx.InteractionID

	ctx = ctxkeys.WithChatID(ctx, dctx.ChatID)
	ctx = ctxkeys.WithInteractionID(ctx, dctx.InteractionID)
	ctx, span := e.tracer.Start(ctx, "drama.run_job")
	defer span.End()
	span.SetAttributes(
		attribute.String("drama.job_id", job.ID),
		attribute.String("drama.chat_id", dctx.ChatID),
		attribute.String("drama.action", dctx.Action),
	)

	e.SetJobStatus(job.ID, JobRunning)
	resp, err := e.backend.Submit(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("job failed", zap.String("job_id", job.ID), zap.Error(err))
		return nil, err
	}
	e.SetJobStatus(job.ID, JobRun)

	dctx.AddUsage(resp)
	if err := e.IncreaseWorldStateEntry(ctx, KeyInputTokens, float64(resp.InputTokens)); err != nil {
		e.logger.Warn("cannot record input tokens", zap.Error(err))
	}
	if err := e.IncreaseWorldStateEntry(ctx, KeyOutputTokens, float64(resp.OutputTokens)); err != nil {
		e.logger.Warn("cannot record output tokens", zap.Error(err))
	}
	e.logPrompt(ctx, payload, resp)

	e.SetJobStatus(job.ID, JobDone)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (e *Engine) logPrompt(ctx context.Context, payload *llm.Job, resp *llm.Response) {
	text := payload.Prompt
	if text == "" {
		if raw, err := json.Marshal(payload.Messages); err == nil {
			text = string(raw)
		}
	}
	config, err := json.Marshal(payload.ModelConfig)
	if err != nil {
		e.logger.Warn("cannot encode model config", zap.Error(err))
	}
	record := persistence.PromptRecord{
		Timestamp: e.clock(),
		Prompt:    text,
		Result:    resp.Text,
		Config:    string(config),
	}
	if err := e.db.AppendPromptLog(ctx, record); err != nil {
		e.logger.Warn("cannot append prompt log", zap.Error(err))
	}
}
