package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/chimp-relay/internal/actuator"
	"github.com/nerrad567/chimp-relay/internal/dispatch"
	"github.com/nerrad567/chimp-relay/internal/history"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/logging"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/chimp-relay/internal/speech"
)

// historyTimeout bounds each history write made by the run itself.
const historyTimeout = 5 * time.Second

// Telemetry receives delivery and run points. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteDelivery(topic string, seq int64, payloadBytes int, qos int, receivedAt time.Time)
	WriteRun(r influxdb.RunResult)
}

// Timeouts bound each blocking step of a run.
type Timeouts struct {
	Connect   time.Duration
	Subscribe time.Duration
	Message   time.Duration
	Stop      time.Duration
}

// TimeoutsFromConfig reads the run timeouts from cfg.
func TimeoutsFromConfig(cfg *config.Config) Timeouts {
	return Timeouts{
		Connect:   cfg.GetConnectTimeout(),
		Subscribe: cfg.GetSubscribeTimeout(),
		Message:   cfg.GetMessageTimeout(),
		Stop:      cfg.GetStopTimeout(),
	}
}

// Deps is everything one run needs. Optional collaborators are nil when
// the feature is disabled.
type Deps struct {
	Config   *config.Config
	Log      *logging.Logger
	Driver   actuator.Driver
	Timeouts Timeouts

	// Speaker synthesizes the startup text and per-message announcements.
	Speaker speech.Speaker

	History   history.Repository
	Telemetry Telemetry

	// MQTTOptions are passed to mqtt.NewCoordinator.
	MQTTOptions []mqtt.CoordinatorOption
}

// Result summarises a run.
type Result struct {
	RunID     string
	Messages  int64
	Completed bool
	Duration  time.Duration
}

// Run performs one relay session as a straight sequence of blocking steps:
// start, await connection, subscribe, wait for messages, unsubscribe, stop,
// await stopped.
//
// The message wait is the only step whose timeout is not an error; the run
// then proceeds to unsubscribe with whatever count it reached. Cancelling
// ctx (a shutdown signal) ends the current wait; cleanup steps still run
// under their own timeouts.
//
// Returns:
//   - Result: Run ID and message count, also on error
//   - error: The first fatal error, wrapped with the step that failed
func Run(ctx context.Context, deps Deps) (res Result, err error) {
	cfg := deps.Config
	started := time.Now()
	res.RunID = history.NewRunID()
	log := deps.Log.With("run_id", res.RunID)

	policy := dispatch.PolicyFromConfig(cfg.Run)
	recordRunStart(deps, res.RunID, policy, log)

	var (
		recorder  *history.Recorder
		announcer *speech.Announcer
	)

	defer func() {
		if recorder != nil {
			recorder.Close()
		}
		if announcer != nil {
			if annErr := announcer.Close(); annErr != nil && err == nil {
				err = fmt.Errorf("announcing: %w", annErr)
			}
		}
		res.Duration = time.Since(started)
		recordRunEnd(deps, res, err, log)
	}()

	if deps.Speaker != nil && cfg.Speech.Text != "" {
		path, speakErr := deps.Speaker.Speak(ctx, cfg.Speech.Text)
		if speakErr != nil {
			return res, fmt.Errorf("startup speech: %w", speakErr)
		}
		log.Info("Speech written", "path", path)
	}

	var observers []dispatch.Observer
	if deps.History != nil {
		recorder = history.NewRecorder(deps.History, res.RunID, cfg.History.QueueSize, log)
		observers = append(observers, recorder)
	}
	if deps.Telemetry != nil {
		observers = append(observers, telemetryObserver(deps.Telemetry))
	}
	if deps.Speaker != nil && cfg.Speech.Announce {
		announcer = speech.NewAnnouncer(deps.Speaker, cfg.Speech.QueueSize, log)
		observers = append(observers, announceObserver(announcer))
	}

	dispatcher := dispatch.New(deps.Driver, policy, actuator.BlinkFromConfig(cfg.Actuator.Blink), log, observers...)
	dispatcher.SetTopicFilter(cfg.Run.Topic)

	opts := append([]mqtt.CoordinatorOption{mqtt.WithLogger(log)}, deps.MQTTOptions...)
	coord, err := mqtt.NewCoordinator(cfg.MQTT, dispatcher.Handle, opts...)
	if err != nil {
		return res, fmt.Errorf("building session: %w", err)
	}

	if err := coord.Start(); err != nil {
		return res, fmt.Errorf("starting session: %w", err)
	}

	info, err := coord.AwaitConnected(ctx, deps.Timeouts.Connect)
	if err != nil {
		coord.Abort()
		return res, fmt.Errorf("connecting: %w", err)
	}
	log.Info("Connected", "broker", info.Broker, "client_id", info.ClientID)

	qos, err := mqtt.ParseQoS(cfg.Run.QoS)
	if err != nil {
		coord.Abort()
		return res, err
	}

	sub := coord.Subscriber()
	ack, err := sub.Subscribe(ctx, mqtt.Subscription{TopicFilter: cfg.Run.Topic, QoS: qos}, deps.Timeouts.Subscribe)
	if err != nil {
		coord.Abort()
		return res, fmt.Errorf("subscribing: %w", err)
	}
	log.Info("Subscribe result", "topic", ack.TopicFilter, "granted_qos", int(ack.GrantedQoS))

	// A failed announcement ends the wait early; the error is returned
	// once the session has been shut down.
	waitCtx, endWait := context.WithCancel(ctx)
	if announcer != nil {
		go func() {
			select {
			case <-announcer.Failed():
				endWait()
			case <-waitCtx.Done():
			}
		}()
	}
	res.Messages, res.Completed = dispatcher.Wait(waitCtx, deps.Timeouts.Message)
	endWait()

	if announcer != nil && announcer.Err() != nil {
		log.Error("Announcement failed, ending message wait", "count", res.Messages, "error", announcer.Err())
	} else if !res.Completed {
		log.Warn("Message wait ended before completion",
			"count", res.Messages,
			"policy", policy.String(),
			"cancelled", ctx.Err() != nil,
		)
	}

	// Shutdown steps outlive a cancelled run context.
	cleanupCtx := context.WithoutCancel(ctx)

	if _, err := sub.Unsubscribe(cleanupCtx, cfg.Run.Topic, deps.Timeouts.Subscribe); err != nil {
		coord.Abort()
		res.Messages = dispatcher.Count()
		return res, fmt.Errorf("unsubscribing: %w", err)
	}
	log.Info("Unsubscribed", "topic", cfg.Run.Topic)

	if err := coord.Stop(); err != nil {
		return res, fmt.Errorf("stopping session: %w", err)
	}
	if err := coord.AwaitStopped(cleanupCtx, deps.Timeouts.Stop); err != nil {
		return res, fmt.Errorf("stopping session: %w", err)
	}

	res.Messages = dispatcher.Count()
	log.Info("Run finished", "messages", res.Messages, "completed", res.Completed)
	return res, nil
}

// telemetryObserver writes one point per delivery.
func telemetryObserver(t Telemetry) dispatch.Observer {
	return dispatch.ObserverFunc(func(d dispatch.Delivery) {
		t.WriteDelivery(d.Topic, d.Seq, len(d.Payload), int(d.QoS), d.ReceivedAt)
	})
}

// announceObserver speaks each non-empty payload.
func announceObserver(a *speech.Announcer) dispatch.Observer {
	return dispatch.ObserverFunc(func(d dispatch.Delivery) {
		if len(d.Payload) > 0 {
			a.Announce(string(d.Payload))
		}
	})
}

func recordRunStart(deps Deps, runID string, policy dispatch.TerminationPolicy, log *logging.Logger) {
	if deps.History == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	err := deps.History.CreateRun(ctx, &history.Run{
		ID:       runID,
		Endpoint: deps.Config.MQTT.Endpoint,
		ClientID: deps.Config.MQTT.ClientID,
		Topic:    deps.Config.Run.Topic,
		Policy:   policy.String(),
	})
	if err != nil {
		log.Warn("recording run start failed", "error", err)
	}
}

func recordRunEnd(deps Deps, res Result, runErr error, log *logging.Logger) {
	if deps.Telemetry != nil {
		deps.Telemetry.WriteRun(influxdb.RunResult{
			RunID:     res.RunID,
			Topic:     deps.Config.Run.Topic,
			Messages:  res.Messages,
			Completed: res.Completed,
			Duration:  res.Duration,
			Err:       runErr,
		})
	}

	if deps.History == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	if err := deps.History.FinishRun(ctx, res.RunID, res.Messages, res.Completed, runErr); err != nil && !errors.Is(err, history.ErrRunNotFound) {
		log.Warn("recording run end failed", "error", err)
	}
}
