package models

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLinesUnmarshalJSON(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		var w WaveResult
		require.NoError(t, json.Unmarshal([]byte(`{"log":["a","b"]}`), &w))
		assert.Equal(t, LogLines{"a", "b"}, w.Log)
	})

	t.Run("single string", func(t *testing.T) {
		var w WaveResult
		require.NoError(t, json.Unmarshal([]byte(`{"log":"recovery failed"}`), &w))
		assert.Equal(t, LogLines{"recovery failed"}, w.Log)
	})

	t.Run("null", func(t *testing.T) {
		var w WaveResult
		require.NoError(t, json.Unmarshal([]byte(`{"log":null}`), &w))
		assert.Nil(t, w.Log)
	})

	t.Run("wrong type", func(t *testing.T) {
		var w WaveResult
		assert.Error(t, json.Unmarshal([]byte(`{"log":42}`), &w))
	})
}

func TestLogLinesUnmarshalDynamoDB(t *testing.T) {
	item := map[string]*dynamodb.AttributeValue{
		"AppId_PlanId": {S: aws.String("app_plan")},
		"ExecutionId":  {S: aws.String("arn:exec")},
		"log":          {S: aws.String("only line")},
		"Waves": {L: []*dynamodb.AttributeValue{
			{M: map[string]*dynamodb.AttributeValue{
				"status": {S: aws.String("failed")},
				"log": {L: []*dynamodb.AttributeValue{
					{S: aws.String("first")},
					{S: aws.String("second")},
				}},
			}},
		}},
	}

	var result Result
	require.NoError(t, dynamodbattribute.UnmarshalMap(item, &result))

	assert.Equal(t, "app_plan", result.AppIDPlanID)
	assert.Equal(t, LogLines{"only line"}, result.Log)
	require.Len(t, result.Waves, 1)
	assert.Equal(t, LogLines{"first", "second"}, result.Waves[0].Log)
}

func TestResultStates(t *testing.T) {
	assert.True(t, Result{S3Bucket: "b", S3Key: "k"}.IsArchived())
	assert.False(t, Result{S3Bucket: "b"}.IsArchived())
	assert.True(t, Result{S3Key: "/results/a_p/e"}.IsArchived())
	assert.True(t, Result{Status: ResultStatusFailed}.IsTerminal())
	assert.True(t, Result{Status: ResultStatusCompleted}.IsTerminal())
	assert.False(t, Result{Status: ResultStatusStarted}.IsTerminal())
}

func TestApplicationNormalize(t *testing.T) {
	app := Application{
		AppName: "X",
		Plans: []Plan{{
			PlanName: "p",
			Waves:    []Wave{{Name: "w1"}},
		}},
	}
	app.Normalize()

	assert.NotNil(t, app.Plans[0].Waves[0].PreWaveActions)
	assert.NotNil(t, app.Plans[0].Waves[0].PostWaveActions)

	empty := Application{AppName: "Y"}
	empty.Normalize()
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Plans":[]`)
}

func TestPlanKey(t *testing.T) {
	assert.Equal(t, "a1_p1", PlanKey("a1", "p1"))
}
