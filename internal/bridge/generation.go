package bridge

import (
	"context"
	"time"

	"github.com/tokligence/chat-bridge/internal/eventhub"
	"github.com/tokligence/chat-bridge/internal/ledger"
	"github.com/tokligence/chat-bridge/internal/provider"
)

// generation is one prompt-to-completion attempt. Its context is the
// cancellation handle: RequestStop, a replacement prompt, and session
// teardown all cancel it. The driver re-checks it at every fragment boundary;
// it cannot interrupt the provider mid-fragment.
type generation struct {
	id       string
	clientID string
	prompt   string
	modelID  string
	sink     Sink
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time
}

// run drives one generation: Requested -> Streaming -> terminal state.
// Exactly one terminal chunk is emitted, always last.
func (r *Registry) run(gen *generation) {
	defer r.wg.Done()
	defer gen.cancel()
	defer r.clearGeneration(gen)

	r.emit(eventhub.New(eventhub.DirectionEvent, "generation", "generation started", map[string]any{
		"clientId":     gen.clientID,
		"generationId": gen.id,
		"model":        gen.modelID,
	}))

	// Requested -> Streaming: resolve the target model.
	modelID := gen.modelID
	if modelID == "" {
		models, err := r.provider.ListModels(gen.ctx)
		if gen.ctx.Err() != nil {
			r.finish(gen, modelID, ledger.OutcomeCancelled, DoneChunk(), 0, 0)
			return
		}
		if err != nil {
			r.logger.Printf("list models for %s: %v", gen.clientID, err)
			r.finish(gen, modelID, ledger.OutcomeFailed, ErrorChunk(msgNoModels), 0, 0)
			return
		}
		if len(models) == 0 {
			r.finish(gen, modelID, ledger.OutcomeFailed, ErrorChunk(msgNoModels), 0, 0)
			return
		}
		modelID = models[0].ID
	}

	events, err := r.provider.Generate(gen.ctx, provider.GenerateRequest{Prompt: gen.prompt, ModelID: modelID})
	if err != nil {
		// cancellation takes precedence over a concurrent failure
		if gen.ctx.Err() != nil {
			r.finish(gen, modelID, ledger.OutcomeCancelled, DoneChunk(), 0, 0)
			return
		}
		r.finish(gen, modelID, ledger.OutcomeFailed, ErrorChunk(err.Error()), 0, 0)
		return
	}

	var fragments, chars int64
	for {
		select {
		case <-gen.ctx.Done():
			r.finish(gen, modelID, ledger.OutcomeCancelled, DoneChunk(), fragments, chars)
			return
		case ev, ok := <-events:
			if !ok {
				r.finish(gen, modelID, ledger.OutcomeCompleted, DoneChunk(), fragments, chars)
				return
			}
			if ev.Err != nil {
				if gen.ctx.Err() != nil {
					r.finish(gen, modelID, ledger.OutcomeCancelled, DoneChunk(), fragments, chars)
					return
				}
				r.finish(gen, modelID, ledger.OutcomeFailed, ErrorChunk(ev.Err.Error()), fragments, chars)
				return
			}
			if gen.ctx.Err() != nil {
				r.finish(gen, modelID, ledger.OutcomeCancelled, DoneChunk(), fragments, chars)
				return
			}
			// write errors mean the peer is gone, never a generation failure
			_ = gen.sink.Send(DeltaChunk(ev.Text))
			fragments++
			chars += int64(len(ev.Text))
			r.emit(eventhub.New(eventhub.DirectionOut, "generation", "chunk", map[string]any{
				"clientId":     gen.clientID,
				"generationId": gen.id,
				"delta":        ev.Text,
			}))
		}
	}
}

// finish emits the single terminal chunk and records the outcome.
func (r *Registry) finish(gen *generation, modelID string, outcome ledger.Outcome, terminal StreamChunk, fragments, chars int64) {
	_ = gen.sink.Send(terminal)

	direction := eventhub.DirectionEvent
	if outcome == ledger.OutcomeFailed {
		direction = eventhub.DirectionError
	}
	r.emit(eventhub.New(direction, "generation", "generation "+string(outcome), map[string]any{
		"clientId":     gen.clientID,
		"generationId": gen.id,
		"model":        modelID,
		"fragments":    fragments,
		"error":        terminal.Err,
	}))

	if r.store == nil {
		return
	}
	entry := ledger.Entry{
		ClientID:   gen.clientID,
		Model:      modelID,
		Outcome:    outcome,
		Fragments:  fragments,
		Chars:      chars,
		DurationMS: time.Since(gen.started).Milliseconds(),
	}
	if err := r.store.Record(context.Background(), entry); err != nil {
		r.logger.Printf("record usage for %s: %v", gen.clientID, err)
	}
}
