package audit

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/causal/internal/causal"
	"github.com/roach88/causal/internal/law"
	"github.com/roach88/causal/internal/telemetry"
)

// evaluateStore runs every law bound to t against ev.
//
// A successful repair is written back and ends the pass: the repaired event
// is evaluated by all laws on the drain loop's next pass.
func (a *Auditor) evaluateStore(ctx context.Context, t *tracked, ev causal.Event[any]) {
	ctx, span := a.tracer.Start(ctx, "audit.evaluate_store",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("causal.store", t.key),
			attribute.String("causal.universe", ev.UniverseID),
			attribute.String("causal.event_id", ev.ID),
			attribute.String("causal.flow", ev.Flow),
			attribute.Int("causal.laws", len(t.rules)),
		),
	)
	defer span.End()

	a.logger.Debug("evaluating store",
		"store", t.key,
		"event_id", ev.ID,
		"flow", ev.Flow,
		"laws", len(t.rules),
	)

	for _, rule := range t.rules {
		if repaired := a.evaluateLaw(ctx, t, rule, ev); repaired {
			return
		}
	}
}

// evaluateLaw runs one law and reports whether a repair was written.
func (a *Auditor) evaluateLaw(ctx context.Context, t *tracked, rule law.Rule, ev causal.Event[any]) bool {
	name := rule.Name()
	ctx, span := a.tracer.Start(ctx, "audit.law",
		trace.WithAttributes(attribute.String("causal.law", name)),
	)
	defer span.End()

	base := telemetry.Entry{
		LawName:    name,
		StoreKey:   t.key,
		UniverseID: ev.UniverseID,
		ObserverID: ev.ObserverID,
		EventID:    ev.ID,
	}

	lc := &lawContext{a: a, flow: ev.Flow, law: name}
	out, err := a.run(ctx, rule, ev.Flow, law.Input[any]{
		State:          ev.Value,
		StoreKey:       t.key,
		EventID:        ev.ID,
		AttemptRepair:  a.autoRepair,
		ApplyReactions: a.applyReactions,
		Context:        lc,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Error("law execution failed",
			"store", t.key,
			"law", name,
			"event_id", ev.ID,
			"error", err,
		)
		a.emit(withDetails(base, telemetry.TypeAuditError, telemetry.SeverityError,
			fmt.Sprintf("%s failed: %v", name, err),
			map[string]any{"code": string(CodeOf(err)), "error": err.Error()},
		))
		return false
	}
	span.SetAttributes(attribute.Bool("causal.valid", out.Valid))

	if !out.Evaluation.Valid {
		a.emit(withDetails(base, telemetry.TypeViolation, telemetry.SeverityWarn,
			fmt.Sprintf("%s violated: %s", name, out.Evaluation),
			map[string]any{"violations": violations(out.Evaluation), "value": ev.Value},
		))
	}

	if out.RepairAttempted {
		a.emitRepair(base, out)
	}

	for _, w := range out.Effects {
		a.emit(withDetails(base, telemetry.TypeReaction, telemetry.SeverityInfo,
			fmt.Sprintf("%s reacted into %s", name, w.StoreKey),
			map[string]any{"target": w.StoreKey, "targetEventId": w.EventID, "value": w.Value},
		))
	}
	for _, re := range out.ReactionErrors {
		if IsCycleError(re.Err) {
			a.logger.Debug("reaction suppressed: repeat in flow",
				"law", name,
				"target", re.Target,
				"flow", ev.Flow,
			)
			continue
		}
		details := map[string]any{"target": re.Target, "error": re.Err.Error()}
		if code := CodeOf(re.Err); code != "" {
			details["code"] = string(code)
		}
		a.emit(withDetails(base, telemetry.TypeReactionError, telemetry.SeverityError,
			fmt.Sprintf("%s reaction into %s failed: %v", name, re.Target, re.Err),
			details,
		))
	}

	if !a.autoRepair || !out.Repaired() {
		return false
	}
	return a.writeRepair(t, base, ev, out.RepairedValue)
}

func (a *Auditor) emitRepair(base telemetry.Entry, out law.Outcome[any]) {
	details := map[string]any{"postRepairValid": out.Repaired()}
	severity := telemetry.SeverityInfo
	message := fmt.Sprintf("%s repaired state", base.LawName)

	switch {
	case out.RepairErr != nil:
		severity = telemetry.SeverityError
		message = fmt.Sprintf("%s repair failed: %v", base.LawName, out.RepairErr)
		details["error"] = out.RepairErr.Error()
	case !out.Repaired():
		severity = telemetry.SeverityError
		message = fmt.Sprintf("%s repair still invalid: %s", base.LawName, out.RepairedEvaluation)
		details["repairedValue"] = out.RepairedValue
		details["violations"] = violations(*out.RepairedEvaluation)
	default:
		details["repairedValue"] = out.RepairedValue
	}
	a.emit(withDetails(base, telemetry.TypeRepair, severity, message, details))
}

func (a *Auditor) writeRepair(t *tracked, base telemetry.Entry, ev causal.Event[any], value any) bool {
	if err := a.flows.step(ev.Flow); err != nil {
		var se *StepsExceededError
		errors.As(err, &se)
		qerr := NewQuotaError(ev.Flow, base.LawName, se)
		a.logger.Error("max steps quota exceeded",
			"store", t.key,
			"law", base.LawName,
			"flow", ev.Flow,
			"steps", se.Steps,
		)
		a.emit(withDetails(base, telemetry.TypeAuditError, telemetry.SeverityError,
			fmt.Sprintf("repair not written: %v", qerr),
			map[string]any{"code": string(qerr.Code)},
		))
		return false
	}

	id, err := t.store.Write(value, causal.Meta{
		ObserverID: law.ObserverID(base.LawName),
		Kind:       causal.KindRepair,
		Flow:       ev.Flow,
	})
	if err != nil {
		code := ErrCodeTypeMismatch
		if !causal.IsTypeError(err) {
			code = ErrCodeExecutionFailed
		}
		a.emit(withDetails(base, telemetry.TypeAuditError, telemetry.SeverityError,
			fmt.Sprintf("repair not written: %v", err),
			map[string]any{"code": string(code), "error": err.Error()},
		))
		return false
	}

	a.logger.Info("repair written",
		"store", t.key,
		"law", base.LawName,
		"event_id", id,
		"repairs", ev.ID,
		"flow", ev.Flow,
	)
	return true
}

// run executes rule, converting panics and type errors into RuntimeErrors.
func (a *Auditor) run(ctx context.Context, rule law.Rule, flow string, in law.Input[any]) (out law.Outcome[any], err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &RuntimeError{
				Code:    ErrCodeExecutionFailed,
				Message: fmt.Sprintf("panic: %v", p),
				Flow:    flow,
				LawName: rule.Name(),
			}
		}
	}()

	out, err = rule.Run(ctx, in)
	var typeErr *law.StateTypeError
	if errors.As(err, &typeErr) {
		return out, &RuntimeError{
			Code:    ErrCodeTypeMismatch,
			Message: typeErr.Error(),
			Flow:    flow,
			LawName: rule.Name(),
		}
	}
	return out, err
}

func withDetails(base telemetry.Entry, typ telemetry.Type, sev telemetry.Severity, msg string, details map[string]any) telemetry.Entry {
	e := base
	e.Type = typ
	e.Severity = sev
	e.Message = msg
	e.Details = details
	return e
}

func violations(e law.Evaluation) []string {
	if len(e.Violations) == 0 {
		return []string{}
	}
	return e.Violations
}
