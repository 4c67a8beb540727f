// Package sqs implements broker.Client over aws-sdk-go-v2/service/sqs,
// adapted from the teacher's internal/queue/sqs/client.go (which
// implemented the same four operations for FlowCatalyst's dispatch
// platform) and hardened with a circuit breaker and a rate limiter.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/common/logging"
)

// API is the subset of the generated SQS client this package calls,
// narrowed for testability the way the teacher's SQSClientAPI does.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// Config holds the settings needed to build a Client.
type Config struct {
	Region string
	// CustomEndpoint targets a LocalStack/testing endpoint when set.
	CustomEndpoint string
	// AccessKeyID/SecretAccessKey provide static credentials: used
	// whenever AccessKeyID is set (e.g. by WithCredentialSource), and
	// together with CustomEndpoint for LocalStack integration tests.
	AccessKeyID     string
	SecretAccessKey string

	// DeleteRateLimit caps DeleteMessage/DeleteMessageBatch calls per
	// second, smoothing bursts against SQS's per-queue API quotas.
	// Zero disables limiting.
	DeleteRateLimit rate.Limit
	DeleteBurst     int
}

// Client implements broker.Client over the AWS SDK, wrapped with a
// circuit breaker (so a prolonged broker outage fails fast instead of
// retrying every poll iteration) and an optional token-bucket limiter
// on delete calls.
type Client struct {
	api     API
	logger  logging.Logger
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// New builds a Client from cfg, loading AWS credentials the way the
// teacher's NewClientWithConfig does: static credentials when a custom
// endpoint (LocalStack) or an AccessKeyID is set, or the default
// provider chain otherwise.
func New(ctx context.Context, cfg Config, logger logging.Logger) (*Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.CustomEndpoint != "" || cfg.AccessKeyID != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var optFns []func(*sqs.Options)
	if cfg.CustomEndpoint != "" {
		optFns = append(optFns, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.CustomEndpoint)
		})
	}

	return newWithAPI(sqs.NewFromConfig(awsCfg, optFns...), cfg, logger), nil
}

func newWithAPI(api API, cfg Config, logger logging.Logger) *Client {
	breakerSettings := gobreaker.Settings{
		Name:    "sqs-broker",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	var limiter *rate.Limiter
	if cfg.DeleteRateLimit > 0 {
		burst := cfg.DeleteBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.DeleteRateLimit, burst)
	}

	return &Client{
		api:     api,
		logger:  logger,
		breaker: gobreaker.NewCircuitBreaker(breakerSettings),
		limiter: limiter,
	}
}

// NewForTesting builds a Client around an already-constructed API,
// bypassing AWS config loading - used by tests and by LocalStack
// integration tests that construct the SDK client themselves.
func NewForTesting(api API, logger logging.Logger) *Client {
	return newWithAPI(api, Config{}, logger)
}

func (c *Client) ResolveQueueURL(ctx context.Context, name string) (string, error) {
	out, err := c.breakerCall(ctx, func(ctx context.Context) (any, error) {
		return c.api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	})
	if err != nil {
		return "", fmt.Errorf("resolve queue url for %q: %w", name, err)
	}
	return aws.ToString(out.(*sqs.GetQueueUrlOutput).QueueUrl), nil
}

func (c *Client) Receive(ctx context.Context, in broker.ReceiveInput) ([]broker.Message, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(in.QueueURL),
		MaxNumberOfMessages:   in.MaxNumberOfMessages,
		WaitTimeSeconds:       in.WaitTimeSeconds,
		VisibilityTimeout:     in.VisibilityTimeout,
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameAll,
		},
	}

	out, err := c.breakerCall(ctx, func(ctx context.Context) (any, error) {
		return c.api.ReceiveMessage(ctx, input)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	result := out.(*sqs.ReceiveMessageOutput)
	messages := make([]broker.Message, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, toBrokerMessage(m))
	}
	return messages, nil
}

func toBrokerMessage(m types.Message) broker.Message {
	attrs := make(map[string]broker.Attribute, len(m.MessageAttributes))
	for k, v := range m.MessageAttributes {
		attrs[k] = broker.Attribute{
			DataType:    broker.AttributeType(aws.ToString(v.DataType)),
			StringValue: aws.ToString(v.StringValue),
			BinaryValue: v.BinaryValue,
		}
	}

	sysAttrs := make(map[string]string, len(m.Attributes))
	for k, v := range m.Attributes {
		sysAttrs[string(k)] = v
	}

	return broker.Message{
		MessageID:         aws.ToString(m.MessageId),
		ReceiptHandle:     aws.ToString(m.ReceiptHandle),
		Body:              aws.ToString(m.Body),
		MessageAttributes: attrs,
		SystemAttributes:  sysAttrs,
	}
}

func (c *Client) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	if err := c.waitLimiter(ctx); err != nil {
		return err
	}

	_, err := c.breakerCall(ctx, func(ctx context.Context) (any, error) {
		return c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(queueURL),
			ReceiptHandle: aws.String(receiptHandle),
		})
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (c *Client) DeleteBatch(ctx context.Context, queueURL string, entries []broker.DeleteBatchEntry) (broker.DeleteBatchResult, error) {
	if len(entries) == 0 {
		return broker.DeleteBatchResult{}, nil
	}
	if err := c.waitLimiter(ctx); err != nil {
		return broker.DeleteBatchResult{}, err
	}

	sdkEntries := make([]types.DeleteMessageBatchRequestEntry, len(entries))
	for i, e := range entries {
		sdkEntries[i] = types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(e.ID),
			ReceiptHandle: aws.String(e.ReceiptHandle),
		}
	}

	out, err := c.breakerCall(ctx, func(ctx context.Context) (any, error) {
		return c.api.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(queueURL),
			Entries:  sdkEntries,
		})
	})
	if err != nil {
		return broker.DeleteBatchResult{}, fmt.Errorf("delete message batch: %w", err)
	}

	result := out.(*sqs.DeleteMessageBatchOutput)
	failed := make([]broker.BatchFailure, 0, len(result.Failed))
	for _, f := range result.Failed {
		failed = append(failed, broker.BatchFailure{
			ID:      aws.ToString(f.Id),
			Code:    aws.ToString(f.Code),
			Message: aws.ToString(f.Message),
		})
	}
	return broker.DeleteBatchResult{Failed: failed}, nil
}

func (c *Client) ChangeMessageVisibility(ctx context.Context, queueURL, receiptHandle string, seconds int32) error {
	_, err := c.breakerCall(ctx, func(ctx context.Context) (any, error) {
		return c.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(queueURL),
			ReceiptHandle:     aws.String(receiptHandle),
			VisibilityTimeout: seconds,
		})
	})
	if err != nil {
		return fmt.Errorf("change message visibility: %w", err)
	}
	return nil
}

func (c *Client) waitLimiter(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) breakerCall(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	return c.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
}
