package opcua

import (
	"sync"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/observability"
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := Config{
		Endpoint: "opc.tcp://gateway:4840",
		Nodes: []NodeConfig{
			{NodeID: "ns=2;s=RTU101.Tag16", UnitID: "101", Tag: "Tag16"},
		},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.PublishInterval != time.Second || cfg.SecurityMode != "None" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Nodes[0].Source != "DIGITAL" {
		t.Fatalf("node source defaults to DIGITAL, got %q", cfg.Nodes[0].Source)
	}
}

func TestConfigValidateRejectsUnboundNodes(t *testing.T) {
	cfg := Config{
		Endpoint: "opc.tcp://gateway:4840",
		Nodes:    []NodeConfig{{NodeID: "ns=2;s=X"}},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("a node without unit_id and tag must be rejected")
	}
	if err := (&Config{}).Validate(); err == nil {
		t.Fatal("missing endpoint must be rejected")
	}
}

func TestStartReservationIsExclusive(t *testing.T) {
	cfg := Config{
		Endpoint: "opc.tcp://gateway:4840",
		Nodes: []NodeConfig{
			{NodeID: "ns=2;s=RTU101.Tag16", UnitID: "101", Tag: "Tag16"},
		},
	}
	c, err := NewCollector(cfg, observability.Nop())
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}

	// Only one of N concurrent starters may win the reservation; the
	// rest must fail before touching the session fields.
	const starters = 8
	wins := make(chan struct{}, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.beginStart() == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("%d starters won the reservation, want exactly 1", won)
	}

	// While reserved, Start must refuse without dialing.
	if err := c.Start(make(chan domain.Sample)); err == nil {
		t.Fatal("Start during an in-flight start must be refused")
	}

	// A failed start releases the reservation so a retry can proceed.
	c.abortStart()
	if err := c.beginStart(); err != nil {
		t.Fatalf("reservation must be reusable after abort: %v", err)
	}
}

func TestVariantToString(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{true, "1"},
		{false, "0"},
		{int32(7), "7"},
		{uint16(3), "3"},
		{float64(3.5), "3.5"},
		{"0", "0"},
	}
	for _, tc := range cases {
		v := ua.MustVariant(tc.in)
		got, ok := variantToString(v)
		if !ok || got != tc.want {
			t.Fatalf("variantToString(%v) = %q %v, want %q", tc.in, got, ok, tc.want)
		}
	}
	if _, ok := variantToString(nil); ok {
		t.Fatal("nil variant must report false")
	}
}
