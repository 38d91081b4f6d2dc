package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drsolutions/drsplan/pkg/models"
)

func testApps() []models.Application {
	return []models.Application{
		{AppID: "app-1", AppName: "billing", Plans: []models.Plan{{PlanID: "p-1"}, {PlanID: "p-2"}}},
		{AppID: "app-2", AppName: "ledger", Plans: []models.Plan{{PlanID: "p-3"}}},
	}
}

func TestBuildBatch(t *testing.T) {
	targets, err := buildBatch(testApps(), []string{"app-2", "app-1"}, []int{0, 1})
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, "ledger", targets[0].Application.AppName)
	assert.Equal(t, 0, targets[0].Plan)
	assert.Equal(t, "billing", targets[1].Application.AppName)
	assert.Equal(t, 1, targets[1].Plan)
}

func TestBuildBatchErrors(t *testing.T) {
	tests := []struct {
		name   string
		appIDs []string
		plans  []int
		errMsg string
	}{
		{name: "no apps", errMsg: "at least one --app"},
		{name: "count mismatch", appIDs: []string{"app-1"}, plans: []int{0, 1}, errMsg: "matching --plan"},
		{name: "unknown app", appIDs: []string{"app-9"}, plans: []int{0}, errMsg: "application app-9 not found"},
		{name: "plan out of range", appIDs: []string{"app-2"}, plans: []int{1}, errMsg: "has no plan 1"},
		{name: "negative plan", appIDs: []string{"app-1"}, plans: []int{-1}, errMsg: "has no plan -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildBatch(testApps(), tt.appIDs, tt.plans)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("AppName: billing\nPlans:\n  - PlanName: primary\n"), 0644))

	doc, err := readDocument(yamlPath)
	require.NoError(t, err)

	var app models.Application
	require.NoError(t, json.Unmarshal(doc, &app))
	assert.Equal(t, "billing", app.AppName)
	require.Len(t, app.Plans, 1)

	jsonPath := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"AppName":"ledger"}`), 0644))

	doc, err = readDocument(jsonPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"AppName":"ledger"}`, string(doc))

	_, err = readDocument(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
