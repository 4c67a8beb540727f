//go:build integration

package sqs_test

import (
	"context"
	"testing"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/broker/sqs"
	"go.sqslistener.dev/internal/common/logging"
)

// TestClientAgainstLocalStack exercises the real SQS wire protocol - the
// four broker.Client operations, including a DeleteBatch round trip -
// against a disposable LocalStack container instead of mocks, matching
// the teacher's go.mod dependency on testcontainers-go/modules/localstack.
func TestClientAgainstLocalStack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := localstack.Run(ctx, "localstack/localstack:3.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	require.NoError(t, err)

	client, err := sqs.New(ctx, sqs.Config{
		Region:          "us-east-1",
		CustomEndpoint:  endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	}, logging.Noop())
	require.NoError(t, err)

	queueName := "integration-test-queue"
	queueURL := createQueue(ctx, t, endpoint, queueName)

	resolved, err := client.ResolveQueueURL(ctx, queueName)
	require.NoError(t, err)
	require.Contains(t, resolved, queueName)

	msgs, err := client.Receive(ctx, broker.ReceiveInput{
		QueueURL:            queueURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     1,
		VisibilityTimeout:   30,
	})
	require.NoError(t, err)
	require.Empty(t, msgs, "fresh queue has nothing to receive yet")

	require.NoError(t, sendMessage(ctx, t, endpoint, queueURL, `{"hello":"world"}`))

	msgs, err = client.Receive(ctx, broker.ReceiveInput{
		QueueURL:            queueURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     5,
		VisibilityTimeout:   30,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, `{"hello":"world"}`, msgs[0].Body)

	require.NoError(t, client.Delete(ctx, queueURL, msgs[0].ReceiptHandle))

	result, err := client.DeleteBatch(ctx, queueURL, []broker.DeleteBatchEntry{
		{ID: "already-gone", ReceiptHandle: msgs[0].ReceiptHandle},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Failed, "re-deleting an already-deleted receipt handle should fail")
}

func createQueue(ctx context.Context, t *testing.T, endpoint, name string) string {
	t.Helper()
	raw := rawSDKClient(ctx, t, endpoint)
	out, err := raw.CreateQueue(ctx, &awssqs.CreateQueueInput{QueueName: &name})
	require.NoError(t, err)
	return *out.QueueUrl
}

func sendMessage(ctx context.Context, t *testing.T, endpoint, queueURL, body string) error {
	t.Helper()
	raw := rawSDKClient(ctx, t, endpoint)
	_, err := raw.SendMessage(ctx, &awssqs.SendMessageInput{QueueUrl: &queueURL, MessageBody: &body})
	return err
}

// rawSDKClient builds an unwrapped AWS SDK client for test setup calls
// (CreateQueue, SendMessage) that broker.Client deliberately doesn't
// expose - it only covers the operations the listener container needs.
func rawSDKClient(ctx context.Context, t *testing.T, endpoint string) *awssqs.Client {
	t.Helper()
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)
	return awssqs.NewFromConfig(cfg, func(o *awssqs.Options) {
		o.BaseEndpoint = &endpoint
	})
}
