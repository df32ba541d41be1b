package faultsync

import (
	"context"
	"testing"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/observability"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/statestore"
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

type fakeSource struct {
	samples []Sample
	since   time.Time
}

func (f *fakeSource) Stream(_ context.Context, since time.Time, fn func(domain.Sample) error) error {
	f.since = since
	for _, s := range f.samples {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) FetchHistory(context.Context, string, int) ([]domain.Sample, error) {
	return nil, nil
}

func (f *fakeSource) CommunicationFaults(context.Context) ([]domain.Sample, error) {
	return nil, nil
}

func (f *fakeSource) PowerFailures(context.Context) ([]domain.Sample, error) {
	return nil, nil
}

func embedConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ClientID: "embed",
			Schedule: "*/5 * * * *",
			DryRun:   true,
			LeaseTTL: Duration(time.Minute),
		},
		Sync: SyncConfig{
			LookbackHours: 24,
			DIRules: RuleSet{
				Rules: []Rule{{
					Tag:         "Tag7",
					Condition:   domain.CondEquals,
					Value:       "1",
					FaultType:   "LIGHT_FAULT",
					Description: "lamp trip",
				}},
			},
		},
	}
}

func newEmbeddedService(t *testing.T, src *fakeSource, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithSource(src),
		WithConditionStore(statestore.NewMemoryStore()),
		WithCheckpointStore(newMemoryCheckpoints()),
		WithObservability(observability.Nop()),
	}, opts...)
	svc, err := NewService(embedConfig(), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestNewServiceRequiresConfig(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatal("expected an error for a nil config")
	}
}

func TestServiceDeliversToChannelSink(t *testing.T) {
	at := time.Now().Add(-time.Minute).Truncate(time.Second)
	src := &fakeSource{samples: []Sample{{
		UnitID:    "101",
		Tag:       "Tag7",
		Value:     "1",
		EventTime: at,
		Source:    domain.SourceUnified,
	}}}

	sink, out, closeFn := NewChannelSink("embed", 4)
	defer closeFn()

	svc := newEmbeddedService(t, src, WithSink(sink))

	stats, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Rows != 1 || stats.Created != 1 {
		t.Fatalf("stats = %+v, want 1 row and 1 created", stats)
	}

	select {
	case c := <-out:
		if c.UnitID != "101" || c.Tag != "Tag7" || c.Rule.FaultType != "LIGHT_FAULT" {
			t.Fatalf("candidate = %+v", c)
		}
		if !c.EventTime.Equal(at) {
			t.Fatalf("EventTime = %v, want %v", c.EventTime, at)
		}
	default:
		t.Fatal("no candidate delivered")
	}
}

func TestServiceAdvancesOverriddenCheckpoint(t *testing.T) {
	at := time.Now().Add(-time.Minute).Truncate(time.Second)
	src := &fakeSource{samples: []Sample{{
		UnitID:    "101",
		Tag:       "Tag7",
		Value:     "0",
		EventTime: at,
		Source:    domain.SourceUnified,
	}}}

	cps := newMemoryCheckpoints()
	svc, err := NewService(embedConfig(),
		WithSource(src),
		WithConditionStore(statestore.NewMemoryStore()),
		WithCheckpointStore(cps),
		WithObservability(observability.Nop()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, ok, err := cps.LastProcessed(context.Background(), "LAST_SYNC_TIME_embed")
	if err != nil || !ok {
		t.Fatalf("LastProcessed: ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Fatalf("checkpoint = %v, want %v", got, at)
	}

	// The second run resumes from the stored position.
	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if !src.since.Equal(at) {
		t.Fatalf("since = %v, want %v", src.since, at)
	}
}

func TestServiceCallbackSink(t *testing.T) {
	at := time.Now().Add(-time.Minute)
	src := &fakeSource{samples: []Sample{{
		UnitID:    "303",
		Tag:       "Tag7",
		Value:     "1",
		EventTime: at,
		Source:    domain.SourceUnified,
	}}}

	var seen []Candidate
	sink := NewCallbackSink("collect", func(_ context.Context, c Candidate) (string, error) {
		seen = append(seen, c)
		return "REF-303", nil
	})

	svc := newEmbeddedService(t, src, WithSink(sink))
	stats, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Created != 1 || len(seen) != 1 {
		t.Fatalf("stats = %+v, seen = %d", stats, len(seen))
	}
}
