package booth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/glowupstudio/booth/compose"
	"github.com/glowupstudio/booth/delivery"
)

// Pipeline runs the stages after capture: it composites a session's
// request in the background, stores the artifact and delivers it.
type Pipeline struct {
	comp    *compose.Compositor
	store   *Store
	sender  delivery.EmailSender
	metrics *Metrics
	log     zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline creates a pipeline. Close cancels all running renders.
func NewPipeline(comp *compose.Compositor, store *Store, sender delivery.EmailSender, m *Metrics, log zerolog.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		comp:    comp,
		store:   store,
		sender:  sender,
		metrics: m,
		log:     log,
		base:    ctx,
		cancel:  cancel,
	}
}

// Render starts compositing the session's request unless a render is
// already running or done. A session with an incomplete payload gets
// compose.ErrMissingPayload.
func (p *Pipeline) Render(s *Session) error {
	req, ctx, gen, started, err := s.beginRender(p.base)
	if err != nil || !started {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, s, req, gen)
	}()
	return nil
}

// Retry re-runs a failed render. It is a no-op in any other state.
func (p *Pipeline) Retry(s *Session) error {
	if s.View().Render != RenderFailed {
		return nil
	}
	return p.Render(s)
}

func (p *Pipeline) run(ctx context.Context, s *Session, req compose.Request, gen int) {
	kind := string(req.Media.Kind())
	log := p.log.With().Str("session", s.ID).Str("kind", kind).Logger()
	start := time.Now()

	art, err := p.comp.Compose(ctx, req)
	p.metrics.rendered(kind, err, time.Since(start))
	var id string
	if err == nil {
		id, err = p.store.PutArtifact(ctx, s.ID, art)
	}
	if errors.Is(err, context.Canceled) {
		log.Debug().Msg("render cancelled")
	} else if err != nil {
		log.Error().Err(err).Msg("render failed")
	}

	if !s.finishRender(gen, id, art, err) && id != "" {
		p.Release(id)
	}
}

// Send delivers the session's artifact by email. The send state is
// Sending for the duration of the call.
func (p *Pipeline) Send(ctx context.Context, s *Session, address string) error {
	id, err := s.beginSend()
	if err != nil {
		return err
	}
	art, err := p.store.GetArtifact(ctx, id)
	if err == nil {
		err = p.sender.Send(ctx, art, address)
	}
	p.metrics.sent(err)
	if addr, perr := delivery.ParseAddress(address); perr == nil {
		address = addr
	}
	s.finishSend(id, address, err)
	if err != nil {
		p.log.Warn().Err(err).Str("session", s.ID).Msg("email delivery failed")
	}
	return err
}

// Artifact loads the session's finished artifact.
func (p *Pipeline) Artifact(ctx context.Context, s *Session) (compose.Artifact, error) {
	id, err := s.Artifact()
	if err != nil {
		return compose.Artifact{}, err
	}
	return p.store.GetArtifact(ctx, id)
}

// Release deletes a stored artifact.
func (p *Pipeline) Release(id string) {
	if err := p.store.DeleteArtifact(context.Background(), id); err != nil {
		p.log.Warn().Err(err).Str("artifact", id).Msg("release artifact")
	}
}

// Forget deletes every artifact stored for a session.
func (p *Pipeline) Forget(session string) {
	n, err := p.store.DeleteSessionArtifacts(context.Background(), session)
	if err != nil {
		p.log.Warn().Err(err).Str("session", session).Msg("forget session artifacts")
		return
	}
	if n > 0 {
		p.log.Debug().Str("session", session).Int64("artifacts", n).Msg("session artifacts deleted")
	}
}

// Close cancels running renders and waits for them to return.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}

// Wait blocks until no render is running.
func (p *Pipeline) Wait() { p.wg.Wait() }
