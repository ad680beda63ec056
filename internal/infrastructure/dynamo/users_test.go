package dynamo

import (
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
)

func TestEmailClaimKey(t *testing.T) {
	assert.Equal(t, "email#a@b.com", emailClaimKey("a@b.com"))
}

func TestIsTransactionConditionFailed(t *testing.T) {
	cancelled := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}
	assert.True(t, isTransactionConditionFailed(cancelled))
	assert.True(t, isTransactionConditionFailed(fmt.Errorf("operation error: %w", cancelled)))

	throttled := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("TransactionConflict")},
		},
	}
	assert.False(t, isTransactionConditionFailed(throttled))
	assert.False(t, isTransactionConditionFailed(nil))
	assert.False(t, isTransactionConditionFailed(fmt.Errorf("network down")))
}
