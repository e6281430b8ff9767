// Package orchestrator sequences a session: the visionary and investigator
// gather in parallel, their findings are compacted into one context package,
// and the refine loop turns that package into the final myth.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/mythmaker/internal"
	"github.com/valpere/mythmaker/internal/arbiter"
	"github.com/valpere/mythmaker/internal/gateway"
	"github.com/valpere/mythmaker/internal/refiner"
	"github.com/valpere/mythmaker/internal/role"
)

const (
	visionaryPrompt    = "Describe the atmosphere."
	investigatorPrompt = "Find specific dark history and ghost stories for: "
)

// ErrMissingInput is returned by Run when the trigger lacks an image or a
// location.
var ErrMissingInput = errors.New("an image and a location are both required")

type OrchestratorConfig struct {
	Refine refiner.Config
}

type Orchestrator struct {
	gw     gateway.Gateway
	roles  role.Set
	loop   *refiner.Loop
	config OrchestratorConfig
	now    func() time.Time
}

// New wires the four roles onto gw. The critic and bard share the gateway
// with the gathering roles.
func New(gw gateway.Gateway, roles role.Set, config OrchestratorConfig) *Orchestrator {
	critic := arbiter.NewCritic(gw, roles.Critic)
	return &Orchestrator{
		gw:     gw,
		roles:  roles,
		loop:   refiner.New(gw, roles.Bard, critic, config.Refine),
		config: config,
		now:    time.Now,
	}
}

// Gather runs the visionary on the image and the investigator on the
// location concurrently and returns once both have finished. Role failures
// come back as "Error: ..." text; the only error is cancellation of ctx.
func (o *Orchestrator) Gather(ctx context.Context, image []byte, mimeType, location string) (visuals, lore string, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		visuals = o.gw.Invoke(gctx, gateway.Request{
			Role:          o.roles.Visionary,
			Prompt:        visionaryPrompt,
			Image:         image,
			ImageMIMEType: mimeType,
		}).String()
		return nil
	})

	g.Go(func() error {
		lore = o.gw.Invoke(gctx, gateway.Request{
			Role:            o.roles.Investigator,
			Prompt:          investigatorPrompt + location,
			SearchGrounding: true,
		}).String()
		return nil
	})

	// Neither call returns an error: gateway failures come back as
	// "Error: ..." text. Cancellation is read from ctx below.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	return visuals, lore, nil
}

// Compact assembles the context package handed to the bard.
func Compact(location, visuals, lore string) string {
	return "LOCATION: " + location + "\nVISUALS: " + visuals + "\nVERIFIED LORE: " + lore + "\n"
}

// Run executes one full session. On error no SessionMemory is returned.
func (o *Orchestrator) Run(ctx context.Context, trigger internal.Trigger) (*internal.SessionMemory, error) {
	if len(trigger.Image) == 0 || strings.TrimSpace(trigger.Location) == "" {
		return nil, ErrMissingInput
	}

	started := o.now()
	mem := &internal.SessionMemory{
		ID:        uuid.New().String(),
		Location:  trigger.Location,
		StartedAt: started,
	}
	log := slog.With("session", mem.ID)
	log.InfoContext(ctx, "session started", "location", trigger.Location)

	visuals, lore, err := o.Gather(ctx, trigger.Image, trigger.MIMEType, trigger.Location)
	if err != nil {
		return nil, fmt.Errorf("gathering: %w", err)
	}
	mem.Visuals = visuals
	mem.Lore = lore
	log.DebugContext(ctx, "gathering complete", "visuals_len", len(visuals), "lore_len", len(lore))

	res, err := o.loop.Refine(ctx, Compact(trigger.Location, visuals, lore))
	if err != nil {
		return nil, fmt.Errorf("refining: %w", err)
	}
	mem.Drafts = res.Drafts
	mem.FinalMyth = res.Final
	mem.Evaluations = res.Evaluations
	mem.StopReason = string(res.Stop)
	mem.Duration = o.now().Sub(started)

	log.InfoContext(ctx, "session complete",
		"iterations", len(mem.Drafts), "stop", mem.StopReason, "duration", mem.Duration)
	return mem, nil
}
