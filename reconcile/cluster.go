/*
cluster.go - Observations, overlap groups, and cluster processing

PURPOSE:
  Runs the external field reconciler over overlap clusters and leftover
  single-source observations, attaching exactly one decision to every
  canonical record produced.

COLLABORATOR CONTRACTS (consumed, not implemented):
  - Overlap detection supplies {observation_ids: [...]} groups.
  - Field reconciliation is a pure function observations -> canonical record.

ERROR HANDLING:
  - A group observation id absent from the observation set is a
    malformed reference: that id is skipped, the group still reconciles
    with whatever members exist.
  - A reconciler failure is fatal for the stage: processing aborts and the
    error propagates.

SEE ALSO:
  - builder.go: Decision construction
  - pipeline package: Stage wiring and file I/O
*/
package reconcile

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/veridian/fact-engine/fact"
)

// =============================================================================
// OBSERVATION - Raw immutable input record
// =============================================================================

// Observation is one raw input record from one data source. Upstream files
// are heterogeneous, so it stays a map with accessor helpers that know the
// legacy key fallbacks.
type Observation map[string]any

// ObservationID prefers "observation_id" and falls back to "id".
func (o Observation) ObservationID() string {
	if id, ok := o["observation_id"].(string); ok && id != "" {
		return id
	}
	if id, ok := o["id"].(string); ok {
		return id
	}
	return ""
}

// DataSource prefers "data_source" and falls back to the observer name with
// any version suffix ("bofa_v2" -> "bofa") stripped.
func (o Observation) DataSource() string {
	if src, ok := o["data_source"].(string); ok && src != "" {
		return src
	}
	observer, _ := o["observer"].(string)
	if observer == "" {
		return "unknown"
	}
	for i := 0; i+1 < len(observer); i++ {
		if observer[i] == '_' && observer[i+1] == 'v' {
			return observer[:i]
		}
	}
	return observer
}

// OverlapGroup is one duplicate cluster from the external overlap detector.
type OverlapGroup struct {
	ObservationIDs []string `json:"observation_ids"`
}

// ReconcileFunc is the external field-level reconciler contract.
type ReconcileFunc func(observations []Observation) (*CanonicalRecord, error)

// =============================================================================
// CLUSTER PROCESSING
// =============================================================================

// Output is the result of processing one observation batch.
type Output struct {
	Canonical    []*CanonicalRecord
	Decisions    []*fact.ReconciliationDecision
	MultiSource  int
	SingleSource int
	SkippedRefs  int
}

// Process reconciles overlap groups first, then every observation not
// claimed by a group as its own single-source cluster. Each canonical
// record is linked to its decision before being returned.
func Process(observations []Observation, groups []OverlapGroup, fn ReconcileFunc, builder *Builder, log *zap.SugaredLogger) (*Output, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	byID := make(map[string]Observation, len(observations))
	for _, obs := range observations {
		if id := obs.ObservationID(); id != "" {
			byID[id] = obs
		}
	}

	out := &Output{}
	processed := make(map[string]struct{})

	reconcileCluster := func(cluster []Observation) error {
		canonical, err := fn(cluster)
		if err != nil {
			return errors.Wrap(err, "field reconciliation failed")
		}
		decision, err := builder.Build(cluster, canonical)
		if err != nil {
			return err
		}
		canonical.ReconciliationDecisionID = decision.DecisionID
		out.Canonical = append(out.Canonical, canonical)
		out.Decisions = append(out.Decisions, decision)
		return nil
	}

	for i, group := range groups {
		var cluster []Observation
		for _, id := range group.ObservationIDs {
			obs, ok := byID[id]
			if !ok {
				out.SkippedRefs++
				log.Warnw("overlap group references unknown observation",
					"group", i, "observation_id", id)
				continue
			}
			cluster = append(cluster, obs)
			processed[id] = struct{}{}
		}
		if len(cluster) == 0 {
			continue
		}
		if err := reconcileCluster(cluster); err != nil {
			return nil, errors.Wrapf(err, "overlap group %d", i)
		}
		out.MultiSource++
	}

	for _, obs := range observations {
		id := obs.ObservationID()
		if id == "" {
			out.SkippedRefs++
			log.Warnw("observation without id skipped")
			continue
		}
		if _, done := processed[id]; done {
			continue
		}
		if err := reconcileCluster([]Observation{obs}); err != nil {
			return nil, errors.Wrapf(err, "observation %s", id)
		}
		out.SingleSource++
	}

	log.Infow("reconciliation complete",
		"canonical", len(out.Canonical),
		"decisions", len(out.Decisions),
		"multi_source", out.MultiSource,
		"single_source", out.SingleSource)
	return out, nil
}

// PassthroughReconciler is the minimal ReconcileFunc for already-reconciled
// inputs: it promotes the first observation's fields to a canonical record
// without choosing between sources. Real deployments plug in their own
// reconciler; this keeps single-source pipelines runnable end to end.
func PassthroughReconciler(observations []Observation) (*CanonicalRecord, error) {
	if len(observations) == 0 {
		return nil, errors.New("passthrough reconciler needs at least one observation")
	}
	first := observations[0]
	id := first.ObservationID()
	if id == "" {
		return nil, errors.New("observation has no id")
	}
	rec := &CanonicalRecord{
		ID:         fmt.Sprintf("canon_%s", id),
		Confidence: 1.0,
		Fields:     make(map[string]FieldValue, len(first)),
	}
	for key, value := range first {
		switch key {
		case "observation_id", "id", keyProvenance, keyConfidence:
			continue
		}
		rec.Fields[key] = FieldValue{
			Value:               value,
			Reconciled:          true,
			Method:              "single_source",
			SourceObservationID: id,
			Confidence:          1.0,
		}
	}
	return rec, nil
}
