package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"
)

// API is the subset of the SQS client the consumer uses.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// ClientConfig selects the region, credentials and endpoint of the SQS client.
type ClientConfig struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for LocalStack.
	Endpoint string
	// Static credentials. When empty the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds an SQS client from cc.
func NewClient(ctx context.Context, cc ClientConfig) (*sqs.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cc.Region),
	}
	if cc.AccessKeyID != "" && cc.SecretAccessKey != "" {
		log.Debug().Str("region", cc.Region).Msg("SQS using static credentials")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cc.AccessKeyID, cc.SecretAccessKey, ""),
		))
	} else {
		log.Debug().Str("region", cc.Region).Msg("SQS using AWS credential chain")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*sqs.Options)
	if cc.Endpoint != "" {
		log.Debug().Str("endpoint", cc.Endpoint).Msg("SQS using custom endpoint")
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cc.Endpoint)
		})
	}

	return sqs.NewFromConfig(awsCfg, clientOpts...), nil
}
