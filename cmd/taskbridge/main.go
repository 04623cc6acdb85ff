package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agentworkforce/taskbridge/internal/bridge"
	"github.com/agentworkforce/taskbridge/internal/httpapi"
)

func main() {
	logger := log.Default()
	addr := listenAddr()

	backend, err := buildMappingBackendFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize mapping backend: %v", err)
	}
	mapping := bridge.NewMappingStoreWithOptions(bridge.MappingStoreOptions{
		Backend: backend,
		Logger:  logger,
	})
	defer mapping.Close()

	gateway := bridge.NewGateway(bridge.GatewayOptions{
		Writer:  buildNotionWriterFromEnv(),
		Mapping: mapping,
		Logger:  logger,
	})
	if !gateway.Ready() {
		log.Printf("notion gateway not configured; webhook events will be accepted but skipped")
	}

	dispatcher := bridge.NewDispatcher(bridge.DispatcherOptions{
		Verifier: bridge.NewSignatureVerifier(os.Getenv("TODOIST_CLIENT_SECRET"), logger),
		Gateway:  gateway,
		Logger:   logger,
	})

	server := httpapi.NewServer(httpapi.ServerOptions{
		Dispatcher:   dispatcher,
		Mapping:      mapping,
		Gateway:      gateway,
		BackendKind:  bridge.BackendKind(backend),
		MaxBodyBytes: int64Env("TASKBRIDGE_MAX_BODY_BYTES", 0),
		Logger:       logger,
	})

	log.Printf("taskbridge listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func listenAddr() string {
	if addr := strings.TrimSpace(os.Getenv("TASKBRIDGE_ADDR")); addr != "" {
		return addr
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		return ":" + port
	}
	return ":8080"
}

func buildMappingBackendFromEnv() (bridge.MappingBackend, error) {
	profileDSN, err := mappingProfileDefaultFromEnv()
	if err != nil {
		return nil, err
	}
	dsn := strings.TrimSpace(os.Getenv("TASKBRIDGE_MAPPING_DSN"))
	file := strings.TrimSpace(os.Getenv("TASKBRIDGE_MAPPING_FILE"))
	switch {
	case dsn != "":
		return bridge.BuildMappingBackendFromDSN(dsn)
	case file != "":
		return bridge.BuildMappingBackendFromDSN(file)
	case profileDSN != "":
		return bridge.BuildMappingBackendFromDSN(profileDSN)
	default:
		return bridge.NewJSONFileMappingBackend("task_mapping.json"), nil
	}
}

func mappingProfileDefaultFromEnv() (string, error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("TASKBRIDGE_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("TASKBRIDGE_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".taskbridge"
	}
	switch profile {
	case "", "custom":
		return "", nil
	case "memory", "inmemory":
		return "memory://", nil
	case "production", "prod":
		dsn := strings.TrimSpace(os.Getenv("TASKBRIDGE_POSTGRES_DSN"))
		if dsn == "" {
			return "", fmt.Errorf("TASKBRIDGE_POSTGRES_DSN is required when TASKBRIDGE_BACKEND_PROFILE=%s", profile)
		}
		return dsn, nil
	case "durable-local", "local-durable":
		return "file://" + filepath.Join(dataDir, "task_mapping.json"), nil
	default:
		return "", fmt.Errorf("unsupported TASKBRIDGE_BACKEND_PROFILE: %s", profile)
	}
}

func buildNotionWriterFromEnv() bridge.PageWriter {
	apiKey := strings.TrimSpace(os.Getenv("NOTION_API_KEY"))
	databaseID := strings.TrimSpace(os.Getenv("NOTION_DATABASE_ID"))
	if apiKey == "" {
		log.Printf("NOTION_API_KEY not set; notion writes disabled")
		return nil
	}
	if databaseID == "" {
		log.Printf("NOTION_DATABASE_ID not set; notion writes disabled")
		return nil
	}
	return bridge.NewHTTPNotionPageClient(bridge.NotionClientOptions{
		BaseURL:    os.Getenv("NOTION_BASE_URL"),
		APIKey:     apiKey,
		DatabaseID: databaseID,
	})
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}
