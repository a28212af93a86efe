package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"agentmem/internal/bootstrap"
	"agentmem/internal/enginedi"
	"agentmem/internal/httpapi"
	"agentmem/internal/memconfig"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *enginedi.Container

	coldStart     = true
	coldStartTime time.Time
)

// init runs during cold start, mirroring the teacher's lambda entrypoint:
// load config, build the container, wrap its router for API Gateway.
func init() {
	coldStartTime = time.Now()
	log.Println("lambda cold start initiated")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := memconfig.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	bootLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create bootstrap logger: %v", err)
	}

	store, err := bootstrap.BuildStorageProvider(ctx, bootLogger)
	if err != nil {
		log.Fatalf("failed to build storage provider: %v", err)
	}

	container, err = enginedi.Build(ctx, enginedi.Options{Config: cfg, Store: store, ServiceName: "agentmem"})
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}

	router := httpapi.NewRouter(container.Facade, container.Logger.Raw())
	handler := router.Setup()

	chiRouter, ok := handler.(*chi.Mux)
	if !ok {
		log.Fatal("failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	log.Printf("lambda cold start completed in %v", time.Since(coldStartTime))
}

// Handler forwards API Gateway HTTP API v2 requests into the chi router,
// propagating the authorizer-derived identity the gateway attached as
// X-User-ID/X-Agent-ID headers (this engine trusts its edge, the same
// trust boundary the teacher's own Lambda authorizer handoff assumes).
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	} else {
		resp.Headers["X-Cold-Start"] = "false"
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Request-ID"] = req.RequestContext.RequestID
	}

	if resp.StatusCode >= 400 {
		container.Logger.Warn("lambda error response",
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.Int("status_code", resp.StatusCode),
		)
	}

	return resp, err
}

func main() {
	lambda.Start(Handler)
}
