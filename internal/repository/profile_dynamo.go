package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/d60-Lab/tutorlink/internal/model"
)

const (
	dynamoMaxBatchKeys       = 100
	dynamoMaxUnprocessedRuns = 3
)

// DynamoBatchGetter *dynamodb.Client 的子集，便于测试替换
type DynamoBatchGetter interface {
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// DynamoProfileRepository 从 DynamoDB 用户资料表（主键 userId）批量读取资料
type DynamoProfileRepository struct {
	client DynamoBatchGetter
	table  string
}

func NewDynamoProfileRepository(client DynamoBatchGetter, table string) *DynamoProfileRepository {
	return &DynamoProfileRepository{client: client, table: table}
}

// NewDynamoClient 使用默认凭证链创建客户端
func NewDynamoClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func (r *DynamoProfileRepository) FetchProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	out := make(map[string]model.Profile, len(ids))
	ids = dedupe(ids)
	for start := 0; start < len(ids); start += dynamoMaxBatchKeys {
		end := start + dynamoMaxBatchKeys
		if end > len(ids) {
			end = len(ids)
		}
		if err := r.fetchBatch(ctx, ids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *DynamoProfileRepository) fetchBatch(ctx context.Context, ids []string, out map[string]model.Profile) error {
	keys := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: id},
		})
	}
	request := map[string]types.KeysAndAttributes{
		r.table: {Keys: keys, ConsistentRead: aws.Bool(false)},
	}

	// UnprocessedKeys 最多重试几轮，剩余的按缺失处理
	for run := 0; run < dynamoMaxUnprocessedRuns && len(request) > 0; run++ {
		resp, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return fmt.Errorf("failed to batch get from table '%s': %w", r.table, err)
		}
		var profiles []model.Profile
		if err := attributevalue.UnmarshalListOfMaps(resp.Responses[r.table], &profiles); err != nil {
			return fmt.Errorf("failed to unmarshal profiles: %w", err)
		}
		for _, p := range profiles {
			out[p.UID] = p
		}
		request = resp.UnprocessedKeys
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}
