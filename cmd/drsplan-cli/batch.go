package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/drsolutions/drsplan/pkg/schema"
)

// buildBatch selects plans[i] of application appIDs[i] for every i
func buildBatch(apps []models.Application, appIDs []string, plans []int) ([]models.ExecutionTarget, error) {
	if len(appIDs) == 0 {
		return nil, fmt.Errorf("at least one --app is required")
	}
	if len(appIDs) != len(plans) {
		return nil, fmt.Errorf("every --app needs a matching --plan (%d apps, %d plans)", len(appIDs), len(plans))
	}

	byID := make(map[string]models.Application, len(apps))
	for _, app := range apps {
		byID[app.AppID] = app
	}

	targets := make([]models.ExecutionTarget, 0, len(appIDs))
	for i, id := range appIDs {
		app, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("application %s not found", id)
		}
		if plans[i] < 0 || plans[i] >= len(app.Plans) {
			return nil, fmt.Errorf("application %s has no plan %d", id, plans[i])
		}
		targets = append(targets, models.ExecutionTarget{Application: app, Plan: plans[i]})
	}
	return targets, nil
}

// readDocument reads a JSON or YAML file and returns it as JSON
func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return schema.YAMLToJSON(data)
	default:
		return data, nil
	}
}
