/*
node.go - Node variants of the registry

PURPOSE:
  Nodes are the persistent things and occurrences the ledger is about:
  - EntityNode: things that exist over time (merchants, people, accounts)
  - EventNode: occurrences at a point in time (transactions, payments)
  - SeriesNode: detected recurring patterns (subscriptions, leases)

INVARIANTS:
  - Entities carry NO mutable business attributes. Properties live in
    AttributeFacts; the node itself only has identity, lifecycle status,
    aliases, and external-id mappings.
  - Event snapshots are a read cache materialized from AttributeFacts,
    never the source of truth.
  - Nodes are never deleted. Retiring an entity means status "superseded"
    plus a superseded_by pointer, with the lineage ledger as the record
    of why.

SEE ALSO:
  - statement.go: Where node properties actually live
  - lineage.go: History of entity identifier changes
*/
package fact

import "github.com/shopspring/decimal"

// =============================================================================
// NODE KIND AND STATUS
// =============================================================================

type NodeKind string

const (
	NodeKindEntity NodeKind = "entity"
	NodeKindEvent  NodeKind = "event"
	NodeKindSeries NodeKind = "series"
)

type NodeStatus string

const (
	StatusDraft      NodeStatus = "draft"
	StatusVerified   NodeStatus = "verified"
	StatusDeprecated NodeStatus = "deprecated"
	StatusSuperseded NodeStatus = "superseded"
)

// Node is implemented by all registry node variants.
type Node interface {
	NodeID() NodeID
	NodeKind() NodeKind
}

// =============================================================================
// ENTITY NODE
// =============================================================================

type EntityType string

const (
	EntityMerchant     EntityType = "Merchant"
	EntityPerson       EntityType = "Person"
	EntityAccount      EntityType = "Account"
	EntityLocation     EntityType = "Location"
	EntityOrganization EntityType = "Organization"
	EntityOther        EntityType = "Other"
)

type EntityNode struct {
	EntityID     NodeID            `json:"entity_id"`
	Kind         NodeKind          `json:"node_type"`
	Type         EntityType        `json:"type"`
	Status       NodeStatus        `json:"status"`
	Aliases      []string          `json:"aliases"`
	ExternalIDs  map[string]string `json:"external_ids"`
	SupersededBy NodeID            `json:"superseded_by,omitempty"`
	SupersededAt *Timestamp        `json:"superseded_at,omitempty"`
	CreatedAt    Timestamp         `json:"created_at"`
	UpdatedAt    Timestamp         `json:"updated_at"`
}

func NewEntityNode(id NodeID, typ EntityType, now Timestamp) *EntityNode {
	return &EntityNode{
		EntityID:    id,
		Kind:        NodeKindEntity,
		Type:        typ,
		Status:      StatusVerified,
		Aliases:     []string{},
		ExternalIDs: map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (n *EntityNode) NodeID() NodeID     { return n.EntityID }
func (n *EntityNode) NodeKind() NodeKind { return NodeKindEntity }

// Supersede retires the entity in favor of successor. The node stays in the
// registry and remains addressable; only its lifecycle status changes.
func (n *EntityNode) Supersede(successor NodeID, at Timestamp) {
	n.Status = StatusSuperseded
	n.SupersededBy = successor
	n.SupersededAt = &at
	n.UpdatedAt = at
}

// =============================================================================
// EVENT NODE
// =============================================================================

type EventType string

const (
	EventFinanceTransaction EventType = "finance_transaction"
	EventPayment            EventType = "payment"
	EventTransfer           EventType = "transfer"
)

type EventNode struct {
	EventID    NodeID         `json:"event_id"`
	Kind       NodeKind       `json:"node_type"`
	Type       EventType      `json:"event_type"`
	HappenedAt string         `json:"happened_at"`
	Status     NodeStatus     `json:"status"`
	Snapshot   map[string]any `json:"snapshot"`
	CreatedAt  Timestamp      `json:"created_at"`
	UpdatedAt  Timestamp      `json:"updated_at"`
}

func NewEventNode(id NodeID, typ EventType, happenedAt string, now Timestamp) *EventNode {
	return &EventNode{
		EventID:    id,
		Kind:       NodeKindEvent,
		Type:       typ,
		HappenedAt: happenedAt,
		Status:     StatusVerified,
		Snapshot:   map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (n *EventNode) NodeID() NodeID     { return n.EventID }
func (n *EventNode) NodeKind() NodeKind { return NodeKindEvent }

// =============================================================================
// SERIES NODE - Detected recurring pattern
// =============================================================================

type SeriesType string

const (
	SeriesBNPL             SeriesType = "bnpl"
	SeriesInstallment      SeriesType = "installment"
	SeriesPhonePlan        SeriesType = "phone_plan"
	SeriesLease            SeriesType = "lease"
	SeriesContract         SeriesType = "contract"
	SeriesSaaSSubscription SeriesType = "saas_subscription"
	SeriesInsurance        SeriesType = "insurance"
	SeriesTax              SeriesType = "tax"
	SeriesLoanPayment      SeriesType = "loan_payment"
	SeriesUtility          SeriesType = "utility"
	SeriesOther            SeriesType = "other"
)

type SeriesStatus string

const (
	SeriesActive    SeriesStatus = "active"
	SeriesPaused    SeriesStatus = "paused"
	SeriesCancelled SeriesStatus = "cancelled"
	SeriesCompleted SeriesStatus = "completed"
)

type SeriesNode struct {
	SeriesID NodeID       `json:"series_id"`
	Kind     NodeKind     `json:"node_type"`
	Type     SeriesType   `json:"series_type"`
	Status   SeriesStatus `json:"status"`

	// Pattern attributes
	Frequency       string           `json:"frequency"`
	ExpectedAmount  *decimal.Decimal `json:"expected_amount"`
	AmountTolerance float64          `json:"amount_tolerance"`

	// Temporal bounds
	StartDate        string `json:"start_date,omitempty"`
	EndDate          string `json:"end_date,omitempty"`
	NextExpectedDate string `json:"next_expected_date,omitempty"`

	// The merchant entity this pattern belongs to.
	MerchantID NodeID `json:"merchant_id,omitempty"`

	EventsCount         int     `json:"events_count"`
	DetectionConfidence float64 `json:"detection_confidence"`

	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

func NewSeriesNode(id NodeID, typ SeriesType, now Timestamp) *SeriesNode {
	return &SeriesNode{
		SeriesID:            id,
		Kind:                NodeKindSeries,
		Type:                typ,
		Status:              SeriesActive,
		Frequency:           "monthly",
		AmountTolerance:     0.10,
		DetectionConfidence: 1.0,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func (n *SeriesNode) NodeID() NodeID     { return n.SeriesID }
func (n *SeriesNode) NodeKind() NodeKind { return NodeKindSeries }
