// Package sideline implements the start/stop/recover lifecycle for
// diverting a subset of the firehose stream and later replaying it with
// the diversion predicate logically inverted.
package sideline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stanlemon/storm-dynamic-spout/consumer"
	"github.com/stanlemon/storm-dynamic-spout/coordinator"
	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/filter"
	"github.com/stanlemon/storm-dynamic-spout/logsource"
	"github.com/stanlemon/storm-dynamic-spout/message"
	"github.com/stanlemon/storm-dynamic-spout/persistence"
	"github.com/stanlemon/storm-dynamic-spout/retry"
)

// Request names the predicate steps an operator wants to divert. Equality
// of the step list (via filter.Chain.FindLabel) is how Stop locates the
// live entry a prior Start installed.
type Request struct {
	Steps []filter.Step
}

// SourceFactory builds a fresh logsource.Source for a replay consumer.
// Called once per Start->Stop cycle and once per recovered STOP payload.
type SourceFactory func() (logsource.Source, error)

// Controller owns the sideline lifecycle: it mutates the firehose's live
// FilterChain and spawns replay VirtualConsumers on the coordinator.
type Controller struct {
	firehose      *consumer.VirtualConsumer
	persistence   persistence.Adapter
	coordinator   *coordinator.Coordinator
	sourceFactory SourceFactory
	deserializer  logsource.Deserializer
	idPrefix      string
	logger        *zap.Logger

	mu sync.Mutex
}

// New constructs a Controller. firehose must already carry a non-nil
// FilterChain (built with consumer.WithFilter) since Start/Stop mutate it.
func New(firehose *consumer.VirtualConsumer, adapter persistence.Adapter, coord *coordinator.Coordinator, sourceFactory SourceFactory, deserializer logsource.Deserializer, idPrefix string, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		firehose:      firehose,
		persistence:   adapter,
		coordinator:   coord,
		sourceFactory: sourceFactory,
		deserializer:  deserializer,
		idPrefix:      idPrefix,
		logger:        logger.Named("sideline"),
	}
}

// Start diverts req's steps from the firehose and persists a START record.
func (c *Controller) Start(req Request) (persistence.RequestID, error) {
	chain := c.firehose.FilterChain()
	if chain == nil {
		return "", errs.IllegalState("sideline.Controller.Start", fmt.Errorf("firehose has no filter chain configured"))
	}

	steps, ok := filter.RecordAll(req.Steps)
	if !ok {
		return "", errs.InvalidArgument("sideline.Controller.Start", fmt.Errorf("request steps are not all persistable"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := persistence.RequestID(uuid.NewString())
	starting := c.firehose.GetCurrentState().Clone()

	payload := persistence.SidelinePayload{
		ID:            id,
		Type:          persistence.Start,
		Steps:         steps,
		StartingState: starting,
	}
	if err := c.persistence.PersistSidelineRequest(payload); err != nil {
		return "", errs.Transient("sideline.Controller.Start", err)
	}

	chain.AddSteps(filter.Label(id), req.Steps)
	c.logger.Info("sideline started", zap.String("id", string(id)))
	return id, nil
}

// Stop locates the active request by its step list, snapshots the
// firehose's current state as the replay's ending bound, removes the
// diversion, persists a STOP record, and submits a replay consumer to the
// coordinator. Stop is a no-op (returns "", nil) if no matching request is
// currently active.
func (c *Controller) Stop(req Request) (persistence.RequestID, error) {
	chain := c.firehose.FilterChain()
	if chain == nil {
		return "", errs.IllegalState("sideline.Controller.Stop", fmt.Errorf("firehose has no filter chain configured"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	label, ok := chain.FindLabel(req.Steps)
	if !ok {
		c.logger.Info("stop requested for a request with no active diversion, ignoring")
		return "", nil
	}
	id := persistence.RequestID(label)

	started, found, err := c.persistence.RetrieveSidelineRequest(id)
	if err != nil {
		return "", errs.Transient("sideline.Controller.Stop", err)
	}
	if !found {
		return "", errs.IllegalState("sideline.Controller.Stop", fmt.Errorf("no persisted START payload for %s", id))
	}

	ending := c.firehose.GetCurrentState().Clone()
	chain.RemoveSteps(label)

	originalSteps, err := filter.RebuildAll(started.Steps)
	if err != nil {
		return "", errs.Transient("sideline.Controller.Stop", err)
	}
	negatedSteps, ok := filter.RecordAll(filter.Negate(originalSteps))
	if !ok {
		return "", errs.InvalidArgument("sideline.Controller.Stop", fmt.Errorf("negated steps for %s are not persistable", id))
	}

	stopped := persistence.SidelinePayload{
		ID:            id,
		Type:          persistence.Stop,
		Steps:         negatedSteps,
		Negated:       true,
		StartingState: started.StartingState,
		EndingState:   ending,
	}
	if err := c.persistence.PersistSidelineRequest(stopped); err != nil {
		return "", errs.Transient("sideline.Controller.Stop", err)
	}

	vc, err := c.spawnReplay(stopped, c.replayConsumerID(id))
	if err != nil {
		return "", err
	}
	c.coordinator.AddVirtualConsumer(vc)
	c.logger.Info("sideline stopped, replay submitted", zap.String("id", string(id)))
	return id, nil
}

// RecoverOnOpen re-attaches every persisted START diversion to the
// firehose and resubmits a replay consumer for every persisted STOP,
// resuming a STOP's replay from its own committed offset if one was
// persisted. Calling this twice produces the same live state both times:
// re-attaching an already-attached label is idempotent (AddSteps
// replaces), and a replay resubmitted while its consumer is still live is
// refused by the coordinator as a duplicate id. A replay that has drained
// and closed has already cleared its STOP payload, so it is not listed.
func (c *Controller) RecoverOnOpen() error {
	ids, err := c.persistence.ListSidelineRequests()
	if err != nil {
		return errs.Transient("sideline.Controller.RecoverOnOpen", err)
	}

	for _, id := range ids {
		payload, found, err := c.persistence.RetrieveSidelineRequest(id)
		if err != nil {
			return errs.Transient("sideline.Controller.RecoverOnOpen", err)
		}
		if !found {
			continue
		}

		switch payload.Type {
		case persistence.Start:
			if err := c.recoverStart(payload); err != nil {
				return err
			}
		case persistence.Stop:
			if err := c.recoverStop(payload); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) recoverStart(payload persistence.SidelinePayload) error {
	chain := c.firehose.FilterChain()
	if chain == nil {
		return errs.IllegalState("sideline.Controller.RecoverOnOpen", fmt.Errorf("firehose has no filter chain configured"))
	}
	steps, err := filter.RebuildAll(payload.Steps)
	if err != nil {
		return errs.Transient("sideline.Controller.RecoverOnOpen", err)
	}
	chain.AddSteps(filter.Label(payload.ID), steps)
	c.logger.Info("recovered active sideline diversion", zap.String("id", string(payload.ID)))
	return nil
}

func (c *Controller) recoverStop(payload persistence.SidelinePayload) error {
	replayID := c.replayConsumerID(payload.ID)
	if committed, found, err := c.persistence.RetrieveConsumerState(replayID); err != nil {
		return errs.Transient("sideline.Controller.RecoverOnOpen", err)
	} else if found && len(committed) > 0 {
		payload.StartingState = committed
	}

	vc, err := c.spawnReplay(payload, replayID)
	if err != nil {
		return err
	}
	c.coordinator.AddVirtualConsumer(vc)
	c.logger.Info("recovered sideline replay", zap.String("id", string(payload.ID)))
	return nil
}

func (c *Controller) spawnReplay(payload persistence.SidelinePayload, id message.VirtualConsumerID) (*consumer.VirtualConsumer, error) {
	if !payload.Negated {
		return nil, errs.IllegalState("sideline.Controller.spawnReplay", fmt.Errorf("STOP payload %s has unnegated steps", payload.ID))
	}
	steps, err := filter.RebuildAll(payload.Steps)
	if err != nil {
		return nil, errs.Transient("sideline.Controller.spawnReplay", err)
	}

	chain := filter.New()
	chain.AddSteps(filter.Label(payload.ID), steps)

	src, err := c.sourceFactory()
	if err != nil {
		return nil, errs.Transient("sideline.Controller.spawnReplay", err)
	}

	partitions := payload.StartingState.Partitions()

	vc := consumer.New(id, partitions, src, c.deserializer, retry.NewFailedTuplesFirst(), c.persistence,
		consumer.WithStartingState(payload.StartingState),
		consumer.WithEndingState(payload.EndingState),
		consumer.WithFilter(chain),
		consumer.WithSidelineRequestID(payload.ID),
		consumer.WithLogger(c.logger),
	)
	return vc, nil
}

// replayConsumerID derives a replay consumer's id deterministically from
// the sideline request id alone, so repeated recovery passes (and Stop
// followed by a later recovery of the same STOP payload) always address
// the same virtual consumer — required for RecoverOnOpen idempotence.
func (c *Controller) replayConsumerID(id persistence.RequestID) message.VirtualConsumerID {
	return message.NewVirtualConsumerID(c.idPrefix, 0, string(id))
}
