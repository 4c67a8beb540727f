package sqs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/common/logging"
)

type fakeAPI struct {
	receiveOut *sqs.ReceiveMessageOutput
	receiveErr error

	deleteBatchOut *sqs.DeleteMessageBatchOutput
	deleteBatchErr error

	deleteErr error

	getQueueURLOut *sqs.GetQueueUrlOutput
	getQueueURLErr error
}

func (f *fakeAPI) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return f.receiveOut, f.receiveErr
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return &sqs.DeleteMessageOutput{}, f.deleteErr
}

func (f *fakeAPI) DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	return f.deleteBatchOut, f.deleteBatchErr
}

func (f *fakeAPI) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func (f *fakeAPI) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	return f.getQueueURLOut, f.getQueueURLErr
}

func TestReceiveTranslatesMessages(t *testing.T) {
	api := &fakeAPI{
		receiveOut: &sqs.ReceiveMessageOutput{
			Messages: []types.Message{
				{
					MessageId:     aws.String("m1"),
					ReceiptHandle: aws.String("r1"),
					Body:          aws.String(`{"hello":"world"}`),
					Attributes: map[string]string{
						"ApproximateReceiveCount": "3",
					},
					MessageAttributes: map[string]types.MessageAttributeValue{
						"Subject": {DataType: aws.String("String"), StringValue: aws.String("order-created")},
					},
				},
			},
		},
	}

	client := NewForTesting(api, logging.Noop())
	messages, err := client.Receive(context.Background(), broker.ReceiveInput{
		QueueURL:            "queue-url",
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   30,
	})
	require.NoError(t, err)
	require.Len(t, messages, 1)

	assert.Equal(t, "m1", messages[0].MessageID)
	assert.Equal(t, "r1", messages[0].ReceiptHandle)
	assert.Equal(t, "3", messages[0].SystemAttributes["ApproximateReceiveCount"])
	assert.Equal(t, "order-created", messages[0].MessageAttributes["Subject"].StringValue)
}

func TestDeleteBatchReportsPartialFailures(t *testing.T) {
	api := &fakeAPI{
		deleteBatchOut: &sqs.DeleteMessageBatchOutput{
			Failed: []types.BatchResultErrorEntry{
				{Id: aws.String("5"), Code: aws.String("ReceiptHandleIsInvalid"), Message: aws.String("expired")},
			},
		},
	}
	client := NewForTesting(api, logging.Noop())

	result, err := client.DeleteBatch(context.Background(), "queue-url", entriesOf(10))
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "5", result.Failed[0].ID)
}

func TestDeleteBatchWholeCallFailure(t *testing.T) {
	api := &fakeAPI{deleteBatchErr: errors.New("network down")}
	client := NewForTesting(api, logging.Noop())

	_, err := client.DeleteBatch(context.Background(), "queue-url", entriesOf(3))
	assert.Error(t, err)
}

func TestDeleteBatchEmptyEntriesIsNoop(t *testing.T) {
	api := &fakeAPI{deleteBatchErr: errors.New("should not be called")}
	client := NewForTesting(api, logging.Noop())

	result, err := client.DeleteBatch(context.Background(), "queue-url", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
}

func entriesOf(n int) []broker.DeleteBatchEntry {
	entries := make([]broker.DeleteBatchEntry, n)
	for i := range entries {
		entries[i] = broker.DeleteBatchEntry{
			ID:            fmt.Sprintf("%d", i),
			ReceiptHandle: fmt.Sprintf("receipt-%d", i),
		}
	}
	return entries
}
