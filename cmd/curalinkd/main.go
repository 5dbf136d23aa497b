// Command curalinkd runs every platform service in one process, wired
// together over the configured message transport. Each service gets its own
// bus Service (and therefore its own queue namespace), so the process
// behaves like the distributed deployment, queue for queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/curalink/curalink/internal/bus"
	configpkg "github.com/curalink/curalink/internal/bus/config"
	"github.com/curalink/curalink/internal/bus/logging"
	transportpkg "github.com/curalink/curalink/internal/bus/transport"
	channeltransport "github.com/curalink/curalink/internal/bus/transport/channel"
	kafkatransport "github.com/curalink/curalink/internal/bus/transport/kafka"
	natstransport "github.com/curalink/curalink/internal/bus/transport/nats"
	rabbitmqtransport "github.com/curalink/curalink/internal/bus/transport/rabbitmq"
	"github.com/curalink/curalink/internal/service/casemgmt"
	"github.com/curalink/curalink/internal/service/monitoring"
	"github.com/curalink/curalink/internal/service/notification"
	"github.com/curalink/curalink/internal/service/patient"
	"github.com/curalink/curalink/internal/service/recommendation"
	"github.com/curalink/curalink/internal/service/rehabilitation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.NewSlogServiceLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(ctx, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("curalinkd exited with error", err, nil)
		os.Exit(1)
	}
}

func run(ctx context.Context, log logging.ServiceLogger) error {
	rabbitmqtransport.Register()
	kafkatransport.Register()
	natstransport.Register()
	channeltransport.Register()

	base, err := configpkg.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// The channel transport only routes within one pub/sub instance, so all
	// services must share it for cross-service cascades to work.
	var shared *transportpkg.Transport
	if base.PubSubSystem == channeltransport.TransportName {
		t, err := transportpkg.Build(ctx, base, logging.NewWatermillAdapter(log))
		if err != nil {
			return fmt.Errorf("building shared channel transport: %w", err)
		}
		shared = &t
	}

	newBus := func(serviceName string) (*bus.Service, error) {
		conf := *base
		conf.ServiceName = serviceName
		if err := conf.Validate(); err != nil {
			return nil, fmt.Errorf("%s configuration: %w", serviceName, err)
		}
		return bus.TryNewService(&conf, log.With(logging.LogFields{"service": serviceName}), ctx, bus.ServiceDependencies{
			Transport: shared,
		})
	}

	services := make(map[string]*bus.Service, 6)
	for _, name := range []string{"patient", "casemgmt", "monitoring", "notification", "recommendation", "rehabilitation"} {
		svc, err := newBus(name)
		if err != nil {
			return err
		}
		services[name] = svc
	}

	patientSvc := patient.NewService(patient.NewMemoryRepository(), services["patient"], log)
	caseSvc := casemgmt.NewService(casemgmt.NewMemoryRepository(), services["casemgmt"], log)
	monitoringSvc := monitoring.NewService(monitoring.NewMemoryRepository(), services["monitoring"], log)
	notificationSvc := notification.NewService(notification.NewMemoryRepository(), log)
	recommendationSvc := recommendation.NewService(recommendation.NewMemoryRepository(), services["recommendation"], log)
	rehabilitationSvc := rehabilitation.NewService(rehabilitation.NewMemoryRepository(), services["rehabilitation"], log)

	if err := monitoring.RegisterSubscriptions(services["monitoring"], monitoringSvc); err != nil {
		return fmt.Errorf("registering monitoring subscriptions: %w", err)
	}
	if err := notification.RegisterSubscriptions(services["notification"], notificationSvc); err != nil {
		return fmt.Errorf("registering notification subscriptions: %w", err)
	}
	if err := recommendation.RegisterSubscriptions(services["recommendation"], recommendationSvc); err != nil {
		return fmt.Errorf("registering recommendation subscriptions: %w", err)
	}
	if err := rehabilitation.RegisterSubscriptions(services["rehabilitation"], rehabilitationSvc); err != nil {
		return fmt.Errorf("registering rehabilitation subscriptions: %w", err)
	}

	log.Info("Starting curalinkd", logging.LogFields{
		"pubsub_system": base.PubSubSystem,
		"services":      len(services),
	})

	if os.Getenv("CURALINK_DEMO") != "" {
		go runDemoScenario(ctx, services["monitoring"], patientSvc, caseSvc, monitoringSvc, log)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(services))
	for name, svc := range services {
		wg.Add(1)
		go func(name string, svc *bus.Service) {
			defer wg.Done()
			if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s router stopped: %w", name, err)
			}
		}(name, svc)
	}

	wg.Wait()
	close(errCh)
	return errors.Join(collect(errCh)...)
}

func collect(ch <-chan error) []error {
	var errs []error
	for err := range ch {
		errs = append(errs, err)
	}
	return errs
}

// runDemoScenario drives one patient through the event cascades so a local
// run (CURALINK_DEMO=1, channel transport) produces visible traffic: a new
// patient gets default thresholds, a low heart-rate reading raises an alert,
// and closing the case completes the downstream entities.
func runDemoScenario(ctx context.Context, monitoringBus *bus.Service, patients *patient.Service, cases *casemgmt.Service, vitals *monitoring.Service, log logging.ServiceLogger) {
	select {
	case <-ctx.Done():
		return
	case <-monitoringBus.Running():
	}

	p, err := patients.CreatePatient(ctx, patient.CreatePatientInput{
		FirstName: "Ada",
		LastName:  "Demo",
		Email:     "ada.demo@example.org",
	})
	if err != nil {
		log.Error("Demo: creating patient", err, nil)
		return
	}

	// Give the patient.created handler time to seed the default thresholds
	// before the reading below is evaluated against them.
	time.Sleep(time.Second)

	c, err := cases.CreateCase(ctx, casemgmt.CreateCaseInput{
		PatientID: p.ID,
		Title:     "Post-surgery recovery",
	})
	if err != nil {
		log.Error("Demo: creating case", err, nil)
		return
	}

	if _, err := vitals.RecordVitalSigns(ctx, monitoring.RecordVitalSignsInput{
		PatientID:        p.ID,
		HeartRate:        45,
		Temperature:      36.6,
		RespiratoryRate:  14,
		OxygenSaturation: 98,
		PainLevel:        2,
	}); err != nil {
		log.Error("Demo: recording vital signs", err, nil)
		return
	}

	if _, err := cases.ChangeStatus(ctx, c.ID, casemgmt.StatusClosed); err != nil {
		log.Error("Demo: closing case", err, nil)
	}
}
