// Package bootstrap picks and constructs the StorageProvider an
// entrypoint (cmd/api, cmd/lambda, cmd/worker) hands to enginedi.Build,
// grounded on the teacher's infrastructure/config.LoadConfig +
// infrastructure/di provider-selection style: one env var picks the
// backend, the rest of the env configures that backend's client.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	supabase "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"agentmem/internal/adapters/dynamostore"
	"agentmem/internal/adapters/memstore"
	"agentmem/internal/adapters/supabasestore"
	"agentmem/internal/capability"
)

// StorageBackend names the supported capability.StorageProvider
// implementations. The zero value defaults to Memory so a misconfigured
// or locally-run entrypoint still starts (degraded, non-persistent).
type StorageBackend string

const (
	Memory   StorageBackend = "memory"
	DynamoDB StorageBackend = "dynamodb"
	Supabase StorageBackend = "supabase"
)

// BuildStorageProvider constructs the StorageProvider named by the
// STORAGE_BACKEND environment variable (default "memory").
func BuildStorageProvider(ctx context.Context, logger *zap.Logger) (capability.StorageProvider, error) {
	switch StorageBackend(os.Getenv("STORAGE_BACKEND")) {
	case DynamoDB:
		return buildDynamoDB(ctx, logger)
	case Supabase:
		return buildSupabase()
	default:
		return memstore.New(), nil
	}
}

func buildDynamoDB(ctx context.Context, logger *zap.Logger) (capability.StorageProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	table := os.Getenv("DYNAMODB_TABLE_NAME")
	if table == "" {
		table = "agentmem"
	}
	client := dynamodb.NewFromConfig(awsCfg)
	return dynamostore.New(client, table, logger), nil
}

func buildSupabase() (capability.StorageProvider, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if url == "" || key == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase storage backend")
	}
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return supabasestore.New(client, supabasestore.DefaultConfig()), nil
}
