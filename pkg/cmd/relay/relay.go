//nolint:funlen,gosec // dev tool, pseudo random is fine here
package relay

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/config"
	"github.com/stewardlog/incident-service-go/pkg/ingest"
	"github.com/stewardlog/incident-service-go/pkg/model"
)

var (
	sessionID string
	numCars   int
	interval  time.Duration
)

// NewRelayCmd creates a command that simulates a track relay. It feeds
// metadata, telemetry and the occasional trigger into the gateway and is
// mainly useful to exercise a locally running server.
func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "simulates a track relay sending frames",
		Run: func(cmd *cobra.Command, args []string) {
			simulate()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "sim-1",
		"session id to publish under")
	cmd.Flags().IntVar(&numCars, "cars", 8,
		"number of simulated cars")
	cmd.Flags().DurationVar(&interval, "interval", time.Second,
		"delay between telemetry frames")
	return cmd
}

func simulate() {
	logger := log.DevLogger(os.Stderr, log.DebugLevel)
	log.ResetDefault(logger)

	nc, err := nats.Connect(config.NatsURL, nats.Name("incident-service-relay"))
	if err != nil {
		log.Fatal("could not connect to nats", log.ErrorField(err))
	}
	defer nc.Close()

	sendFrame(nc, &ingest.EventFrame{
		Type:        ingest.FrameSessionMetadata,
		SessionID:   sessionID,
		TrackName:   "Simulated Raceway",
		SessionType: "race",
	})

	drivers := make([]*model.DriverSnapshot, numCars)
	for i := range drivers {
		drivers[i] = &model.DriverSnapshot{
			DriverID:   fmt.Sprintf("sim-d%d", i+1),
			DriverName: fmt.Sprintf("Sim Driver %d", i+1),
			CarNumber:  fmt.Sprintf("%d", i+1),
			Position:   i + 1,
			LapNumber:  1,
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-sigChan:
			log.Info("relay simulation stopped")
			return
		case <-ticker.C:
			advance(drivers)
			sendFrame(nc, &ingest.EventFrame{
				Type:          ingest.FrameTelemetry,
				SessionID:     sessionID,
				SessionTimeMs: time.Since(start).Milliseconds(),
				Drivers:       drivers,
			})
			// roughly one trigger every 20 frames
			if rand.Intn(20) == 0 {
				sendFrame(nc, randomTrigger(drivers, start))
			}
		}
	}
}

func advance(drivers []*model.DriverSnapshot) {
	for _, d := range drivers {
		d.LapDistPct += 0.01 + rand.Float64()*0.01
		if d.LapDistPct >= 1 {
			d.LapDistPct -= 1
			d.LapNumber++
		}
		d.Speed = 50 + rand.Float64()*20
	}
}

func randomTrigger(drivers []*model.DriverSnapshot, start time.Time) *ingest.EventFrame {
	primary := drivers[rand.Intn(len(drivers))]
	trigger := &model.IncidentTrigger{
		SessionID:       sessionID,
		PrimaryDriverID: primary.DriverID,
		SessionTimeMs:   time.Since(start).Milliseconds(),
		Data: model.TriggerData{
			LapNumber:     primary.LapNumber,
			TrackPosition: primary.LapDistPct,
		},
	}
	if rand.Intn(2) == 0 {
		trigger.Kind = model.TriggerOffTrack
		trigger.Data.OffTrack = &model.OffTrackData{Speed: primary.Speed}
	} else {
		other := drivers[rand.Intn(len(drivers))]
		if other.DriverID != primary.DriverID {
			trigger.NearbyDriverIDs = []string{other.DriverID}
		}
		trigger.Kind = model.TriggerContactProx
		trigger.Data.Contact = &model.ContactData{
			ClosingSpeed:  rand.Float64() * 15,
			ApproachAngle: rand.Float64() * 90,
		}
	}
	return &ingest.EventFrame{Type: ingest.FrameTrigger, Trigger: trigger}
}

func sendFrame(nc *nats.Conn, frame *ingest.EventFrame) {
	data, err := oj.Marshal(frame)
	if err != nil {
		log.Error("could not encode frame", log.ErrorField(err))
		return
	}
	msg, err := nc.Request(ingest.RelaySubject, data, 2*time.Second)
	if err != nil {
		log.Warn("no ack received", log.ErrorField(err))
		return
	}
	var ack ingest.AckResponse
	if err := oj.Unmarshal(msg.Data, &ack); err != nil {
		log.Warn("could not decode ack", log.ErrorField(err))
		return
	}
	if !ack.Success {
		log.Warn("frame rejected", log.String("type", string(frame.Type)))
	}
}
