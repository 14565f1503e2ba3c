package artifact_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veridian/fact-engine/artifact"
	"github.com/veridian/fact-engine/fact"
)

func testTime() fact.Timestamp {
	return fact.At(time.Date(2025, time.October, 14, 10, 0, 0, 0, time.UTC))
}

// =============================================================================
// FILE HANDLING
// =============================================================================

func TestWriteJSON_FirstWrite_NoBackupCreated(t *testing.T) {
	// GIVEN: A path with no existing artifact
	// WHEN: Writing a document
	// THEN: The file exists and no .backup sibling was created

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, artifact.WriteJSON(path, map[string]any{"ok": true}))

	_, err := os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".backup")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteJSON_Overwrite_PreservesPriorContentInBackup(t *testing.T) {
	// GIVEN: An artifact already on disk
	// WHEN: Overwriting it
	// THEN: The prior content survives in <path>.backup

	path := filepath.Join(t.TempDir(), "entities.json")
	require.NoError(t, artifact.WriteJSON(path, map[string]string{"run": "first"}))
	require.NoError(t, artifact.WriteJSON(path, map[string]string{"run": "second"}))

	var backup map[string]string
	raw, err := os.ReadFile(path + ".backup")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &backup))
	assert.Equal(t, "first", backup["run"])

	var current map[string]string
	require.NoError(t, artifact.ReadJSON(path, &current))
	assert.Equal(t, "second", current["run"])
}

func TestReadJSON_MissingFile_ReportsArtifactMissing(t *testing.T) {
	// GIVEN: A path nothing ever wrote
	// WHEN: Reading it
	// THEN: The error is the skippable missing-artifact sentinel

	var v map[string]any
	err := artifact.ReadJSON(filepath.Join(t.TempDir(), "never.json"), &v)
	require.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrArtifactMissing)
}

// =============================================================================
// ENVELOPES
// =============================================================================

func TestLineageFile_CountMatchesRecords(t *testing.T) {
	// GIVEN: Two lineage records
	// WHEN: Building the lineage file envelope
	// THEN: lineage_count matches and the version is stamped

	records := []*fact.EntityLineage{
		{LineageID: "lineage_000000", Operation: fact.LineageMerge},
		{LineageID: "lineage_000001", Operation: fact.LineageMerge},
	}
	f := artifact.NewLineageFile(records, testTime())
	assert.Equal(t, 2, f.LineageCount)
	assert.Equal(t, artifact.LineageFileVersion, f.Version)
}

func TestCanonicalLedger_EmptyInput_MarshalsEmptyArrayNotNull(t *testing.T) {
	// GIVEN: A run that produced no transactions
	// WHEN: Writing and re-reading the ledger
	// THEN: transactions is an empty array, not null

	ledger := artifact.NewCanonicalLedger(nil, nil, 0, testTime())
	raw, err := json.Marshal(ledger)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"transactions":[]`)
	assert.Contains(t, string(raw), `"reconciliation_type":"field_level_with_decisions"`)
}

func TestSchemaExport_JSONRoundTrip_RestoresStore(t *testing.T) {
	// GIVEN: An export written to disk
	// WHEN: Reading it back and restoring a store
	// THEN: Node types survive the round trip and counts match

	s := fact.NewStore()
	s.AddEvent(fact.NewEventNode("evt_1", fact.EventFinanceTransaction, "2025-03-10", testTime()))
	entity := fact.NewEntityNode("ent_1", fact.EntityMerchant, testTime())
	entity.Aliases = []string{"Blue Bottle Coffee"}
	s.AddEntity(entity)

	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, artifact.WriteJSON(path, artifact.NewSchemaExport(s, "canonical_ledger_v6", testTime())))

	var read artifact.SchemaExport
	require.NoError(t, artifact.ReadJSON(path, &read))

	restored, err := read.Restore()
	require.NoError(t, err)
	assert.Equal(t, s.Stats(), restored.Stats())

	node, ok := restored.Node("ent_1")
	require.True(t, ok)
	assert.Equal(t, []string{"Blue Bottle Coffee"}, node.(*fact.EntityNode).Aliases)
	_, ok = restored.Node("evt_1")
	assert.True(t, ok)
}

func TestSchemaExport_StatisticsMatchStore(t *testing.T) {
	// GIVEN: A store with one event and one entity
	// WHEN: Exporting it
	// THEN: Statistics and collections reflect the store contents

	s := fact.NewStore()
	s.AddEvent(fact.NewEventNode("evt_1", fact.EventFinanceTransaction, "2025-03-10", testTime()))
	s.AddEntity(fact.NewEntityNode("ent_1", fact.EntityMerchant, testTime()))

	export := artifact.NewSchemaExport(s, "canonical_ledger_v6", testTime())
	assert.Equal(t, 2, export.Statistics.TotalNodes)
	assert.Len(t, export.Nodes, 2)
	assert.Equal(t, "canonical_ledger_v6", export.Source)
	assert.Equal(t, artifact.SchemaExportVersion, export.SchemaVersion)
}
