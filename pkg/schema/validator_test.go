package schema

import (
	"testing"

	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validApplicationYAML = `
AppName: Payments
AccountId: "123456789012"
Region: us-east-1
Plans:
  - PlanName: Primary
    RTO: "60"
    Waves:
      - Name: databases
        KeyName: Wave
        KeyValue: "1"
        MaxWaitTime: 900
        PreWaveActions:
          - Name: stop writes
            StartAutomationExecution:
              DocumentName: AWS-RunShellScript
              Parameters:
                commands: ["systemctl stop app"]
`

func TestValidateApplicationYAML(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateApplicationYAML([]byte(validApplicationYAML)))
}

func TestValidateApplicationJSONFailures(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := map[string]string{
		"missing name":          `{"Plans":[]}`,
		"plans not a list":      `{"AppName":"a","Plans":{}}`,
		"wave without key":      `{"AppName":"a","Plans":[{"PlanName":"p","Waves":[{"Name":"w","KeyName":"Wave"}]}]}`,
		"negative wait":         `{"AppName":"a","Plans":[{"PlanName":"p","Waves":[{"Name":"w","KeyName":"k","KeyValue":"v","MaxWaitTime":-1}]}]}`,
		"fractional wait":       `{"AppName":"a","Plans":[{"PlanName":"p","Waves":[{"Name":"w","KeyName":"k","KeyValue":"v","UpdateTime":1.5}]}]}`,
		"action without doc":    `{"AppName":"a","Plans":[{"PlanName":"p","Waves":[{"Name":"w","KeyName":"k","KeyValue":"v","PostWaveActions":[{"Name":"x","StartAutomationExecution":{}}]}]}]}`,
		"bad account id":        `{"AppName":"a","AccountId":"abc","Plans":[]}`,
		"parameter not strings": `{"AppName":"a","Plans":[{"PlanName":"p","Waves":[{"Name":"w","KeyName":"k","KeyValue":"v","PreWaveActions":[{"Name":"x","StartAutomationExecution":{"DocumentName":"d","Parameters":{"a":"b"}}}]}]}]}`,
		"not json":              `{`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, v.ValidateApplicationJSON([]byte(doc)))
		})
	}
}

func TestValidateApplication(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	app := models.Application{AppName: "Payments", Plans: []models.Plan{{
		PlanName: "Primary",
		Waves:    []models.Wave{{Name: "w", KeyName: "Wave", KeyValue: "1"}},
	}}}
	app.Normalize()
	assert.NoError(t, v.ValidateApplication(app))

	app.Plans[0].Waves[0].Name = ""
	assert.Error(t, v.ValidateApplication(app))
}

func TestYAMLToJSON(t *testing.T) {
	out, err := YAMLToJSON([]byte("a: 1\nb: [x]\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":["x"]}`, string(out))

	_, err = YAMLToJSON([]byte("a: [\n"))
	assert.Error(t, err)
}
