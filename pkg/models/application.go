// Package models defines the records exchanged by the API and persisted by the stores.
package models

// Account is an AWS account that recovery plans may target
type Account struct {
	// AccountID is the AWS account number and the table key
	AccountID string `json:"AccountId"`

	// Region is the default region for the account
	Region string `json:"Region"`
}

// Application groups the recovery plans of one protected workload
type Application struct {
	// AppID is generated on first save and never reassigned
	AppID string `json:"AppId,omitempty"`

	AppName     string `json:"AppName"`
	Description string `json:"Description"`

	// KeyName and KeyValue identify the application's source servers by tag
	KeyName  string `json:"KeyName"`
	KeyValue string `json:"KeyValue"`

	Owner    string `json:"Owner"`
	SnsTopic string `json:"SnsTopic"`

	// AccountID references an Account by id only
	AccountID string `json:"AccountId"`
	Region    string `json:"Region"`

	// Plans are embedded in the application record
	Plans []Plan `json:"Plans"`
}

// Plan is a recovery runbook made of sequential waves
type Plan struct {
	// PlanID is generated on first save and never reassigned
	PlanID string `json:"PlanId,omitempty"`

	PlanName    string `json:"PlanName"`
	Description string `json:"Description"`
	Owner       string `json:"Owner"`
	RTO         string `json:"RTO"`
	RPO         string `json:"RPO"`

	// Waves execute in slice order
	Waves []Wave `json:"Waves"`
}

// Wave is a group of servers recovered together
type Wave struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`

	// KeyName and KeyValue select the wave's servers by tag
	KeyName  string `json:"KeyName"`
	KeyValue string `json:"KeyValue"`

	// MaxWaitTime and UpdateTime are in seconds
	MaxWaitTime int `json:"MaxWaitTime"`
	UpdateTime  int `json:"UpdateTime"`

	PreWaveActions  []Action `json:"PreWaveActions"`
	PostWaveActions []Action `json:"PostWaveActions"`
}

// Action is an automation document run before or after a wave
type Action struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
	MaxWaitTime int    `json:"MaxWaitTime"`
	UpdateTime  int    `json:"UpdateTime"`

	StartAutomationExecution AutomationExecution `json:"StartAutomationExecution"`
}

// AutomationExecution holds the arguments of an SSM StartAutomationExecution call
type AutomationExecution struct {
	DocumentName string              `json:"DocumentName"`
	Parameters   map[string][]string `json:"Parameters"`
}

// PlanKey returns the results partition key for an application and plan
func PlanKey(appID, planID string) string {
	return appID + "_" + planID
}

// Normalize replaces nil collections with empty ones so that documents read back
// from a store serialize the same way they were written.
func (a *Application) Normalize() {
	if a.Plans == nil {
		a.Plans = []Plan{}
	}
	for i := range a.Plans {
		p := &a.Plans[i]
		if p.Waves == nil {
			p.Waves = []Wave{}
		}
		for j := range p.Waves {
			w := &p.Waves[j]
			if w.PreWaveActions == nil {
				w.PreWaveActions = []Action{}
			}
			if w.PostWaveActions == nil {
				w.PostWaveActions = []Action{}
			}
			normalizeActions(w.PreWaveActions)
			normalizeActions(w.PostWaveActions)
		}
	}
}

func normalizeActions(actions []Action) {
	for i := range actions {
		if actions[i].StartAutomationExecution.Parameters == nil {
			actions[i].StartAutomationExecution.Parameters = map[string][]string{}
		}
	}
}
