package engine

import (
	"context"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// Rules groups the loaded rule sets by source.
type Rules struct {
	Digital []domain.Rule
	Analog  []domain.Rule
	Master  []domain.Rule
}

// For returns the ordinary rule sets a sample of the given kind may
// trigger. Unified samples carry both digital and analog data;
// computed-state samples behave as digital.
func (r Rules) For(kind domain.SourceKind) []domain.Rule {
	switch kind {
	case domain.SourceDigital, domain.SourceComputed:
		return r.Digital
	case domain.SourceAnalog:
		return r.Analog
	case domain.SourceUnified:
		out := make([]domain.Rule, 0, len(r.Digital)+len(r.Analog))
		out = append(out, r.Digital...)
		out = append(out, r.Analog...)
		return out
	}
	return nil
}

// HasRate reports whether any ordinary rule needs the percentage
// evaluator.
func (r Rules) HasRate() bool {
	for _, rule := range r.Digital {
		if rule.IsRate() {
			return true
		}
	}
	for _, rule := range r.Analog {
		if rule.IsRate() {
			return true
		}
	}
	return false
}

// MaxWindow returns the widest history window any rate rule needs, in
// hours.
func (r Rules) MaxWindow() int {
	max := 0
	for _, set := range [][]domain.Rule{r.Digital, r.Analog} {
		for _, rule := range set {
			if rule.IsRate() && rule.Window() > max {
				max = rule.Window()
			}
		}
	}
	return max
}

// RunStats counts the outcomes of one run.
type RunStats struct {
	Rows       int
	Candidates int
	Created    int
	Suppressed int
	Errors     int
}

// Selector consumes a (unit, time)-ordered sample stream, buffers the
// current unit, and on each unit boundary applies tiered precedence
// (blocking master > collected master > ordinary rules) to emit at
// most one fault candidate per unit per batch. Winners pass the
// deduplication gate before delivery.
type Selector struct {
	matcher *Matcher
	rate    *RateEvaluator
	arbiter *Arbiter
	gate    *Gate
	sink    ports.CandidateSink
	source  ports.SampleSource
	obs     ports.Observability
	rules   Rules

	seen  map[string]struct{}
	cur   string
	buf   []domain.Sample
	stats RunStats
}

func NewSelector(matcher *Matcher, rate *RateEvaluator, arbiter *Arbiter, gate *Gate, sink ports.CandidateSink, source ports.SampleSource, rules Rules, obs ports.Observability) *Selector {
	return &Selector{
		matcher: matcher,
		rate:    rate,
		arbiter: arbiter,
		gate:    gate,
		sink:    sink,
		source:  source,
		obs:     obs,
		rules:   rules,
		seen:    make(map[string]struct{}),
	}
}

// Offer feeds the next sample. The contract owed by the source is
// (unit, event time) ascending order; a unit change flushes the
// buffered group.
func (sel *Selector) Offer(ctx context.Context, s domain.Sample) error {
	sel.stats.Rows++
	if s.UnitID != sel.cur {
		if err := sel.flushCurrent(ctx); err != nil {
			return err
		}
		sel.cur = s.UnitID
	}
	sel.buf = append(sel.buf, s)
	return nil
}

// Flush evaluates the final buffered group at end of stream.
func (sel *Selector) Flush(ctx context.Context) error {
	return sel.flushCurrent(ctx)
}

// Stats returns the counts accumulated so far.
func (sel *Selector) Stats() RunStats { return sel.stats }

func (sel *Selector) flushCurrent(ctx context.Context) error {
	if sel.cur == "" || len(sel.buf) == 0 {
		sel.buf = sel.buf[:0]
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unit := sel.cur
	buf := sel.buf

	res := sel.arbiter.Arbitrate(unit, buf, sel.rules.Master)
	switch {
	case res.Blocking != nil:
		sel.emit(ctx, masterCandidate(unit, *res.Blocking))
	case len(res.Collected) > 0:
		sel.emit(ctx, masterCandidate(unit, latestMaster(res.Collected)))
	default:
		if winner := sel.ordinaryWinner(ctx, unit, buf); winner != nil {
			sel.emit(ctx, *winner)
		}
	}

	sel.buf = sel.buf[:0]
	return nil
}

// ordinaryWinner evaluates every buffered sample against the digital
// and analog rule sets plus the rate evaluator, and picks the most
// recent qualifying hit.
func (sel *Selector) ordinaryWinner(ctx context.Context, unit string, buf []domain.Sample) *domain.FaultCandidate {
	mctx := Context{RelatedPoints: buf}

	var history []domain.Sample
	if sel.rules.HasRate() {
		var err error
		history, err = sel.source.FetchHistory(ctx, unit, sel.rules.MaxWindow())
		if err != nil {
			// Rate rules degrade to no-match this batch; the
			// instantaneous rules still run.
			sel.obs.Error("history_fetch_failed", err, ports.Field{Key: "unit", Value: unit})
			history = nil
		}
	}

	var winner *domain.FaultCandidate
	for _, s := range buf {
		rules := sel.rules.For(s.Source)

		if r := sel.matcher.Match(s, rules, mctx); r != nil {
			c := sampleCandidate(s, *r)
			winner = laterOf(winner, &c)
		}
		if len(history) > 0 {
			if c := sel.rate.Evaluate(s, history, rules, mctx); c != nil {
				winner = laterOf(winner, c)
			}
		}
	}
	return winner
}

// emit passes a winner through the run-level idempotency set and the
// deduplication gate, then delivers it. Delivery failures are counted
// and logged per candidate; the run continues.
func (sel *Selector) emit(ctx context.Context, c domain.FaultCandidate) {
	if _, dup := sel.seen[c.Key()]; dup {
		return
	}
	sel.seen[c.Key()] = struct{}{}
	sel.stats.Candidates++
	sel.obs.IncCounter("faultsync_candidates_total", 1)

	if sel.gate.IsDuplicate(ctx, c) {
		sel.stats.Suppressed++
		return
	}

	id, err := sel.sink.Deliver(ctx, c)
	if err != nil {
		sel.stats.Errors++
		sel.obs.IncCounter("faultsync_persist_errors_total", 1)
		sel.obs.Error("candidate_delivery_failed", err,
			ports.Field{Key: "unit", Value: c.UnitID},
			ports.Field{Key: "tag", Value: c.Tag},
			ports.Field{Key: "sink", Value: sel.sink.Name()})
		return
	}

	sel.stats.Created++
	sel.obs.IncCounter("faultsync_incidents_created_total", 1)
	sel.obs.Info("incident_registered",
		ports.Field{Key: "unit", Value: c.UnitID},
		ports.Field{Key: "tag", Value: c.Tag},
		ports.Field{Key: "incident", Value: id},
		ports.Field{Key: "rule", Value: c.Rule.Description})
}

func sampleCandidate(s domain.Sample, r domain.Rule) domain.FaultCandidate {
	return domain.FaultCandidate{
		UnitID:    s.UnitID,
		Tag:       s.Tag,
		Value:     s.Value,
		EventTime: s.EventTime,
		Rule:      r,
	}
}

func masterCandidate(unit string, m MasterMatch) domain.FaultCandidate {
	return domain.FaultCandidate{
		UnitID:    unit,
		Tag:       m.Rule.Tag,
		Value:     m.Sample.Value,
		EventTime: m.Sample.EventTime,
		Rule:      m.Rule,
	}
}

// latestMaster returns the collected match with the latest event time;
// ties go to the later entry.
func latestMaster(matches []MasterMatch) MasterMatch {
	best := matches[0]
	for _, m := range matches[1:] {
		if !m.Sample.EventTime.Before(best.Sample.EventTime) {
			best = m
		}
	}
	return best
}

// laterOf keeps the more recent candidate; ties go to the newer hit.
func laterOf(a, b *domain.FaultCandidate) *domain.FaultCandidate {
	if a == nil {
		return b
	}
	if b == nil || b.EventTime.Before(a.EventTime) {
		return a
	}
	return b
}
