package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"time"

	"github.com/markdave123-py/kbchat/internal/config"
	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/core/credentials"
	db "github.com/markdave123-py/kbchat/internal/core/database"
	"github.com/markdave123-py/kbchat/internal/core/llm"
	objectclient "github.com/markdave123-py/kbchat/internal/core/object-client"
	"github.com/markdave123-py/kbchat/internal/core/session"
)

type App struct {
	Sessions core.SessionStore
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	creds, err := credentials.LoadFile(cfg.SecretsFile)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}
	if cfg.KnowledgeBaseID == "" {
		cfg.KnowledgeBaseID = creds.KnowledgeBaseID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Printf("Loaded %d user(s) from %s.", creds.Len(), cfg.SecretsFile)

	s3Cfg, err := loadAWSConfig(appCtx, cfg, cfg.AwsRegion)
	if err != nil {
		return nil, err
	}
	bedrockCfg, err := loadAWSConfig(appCtx, cfg, cfg.BedrockRegion)
	if err != nil {
		return nil, err
	}
	objClient := objectclient.NewS3Client(s3Cfg)
	kb := llm.NewBedrockKnowledgeBase(bedrockCfg)
	log.Println("AWS clients initialized.")

	var store core.SessionStore
	if cfg.DatabaseURL != "" {
		dbClient, err := db.NewDatabaseClient(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		store = dbClient
		log.Println("Database initialized and ready; sessions are persistent.")
	} else {
		store = session.NewMemoryStore(cfg.SessionIdle)
		log.Println("DATABASE_URL not set; sessions are kept in memory.")
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		log.Println("WARN: SESSION_SECRET not set; sessions will not survive a restart.")
	}

	server := NewServer(cfg, Deps{
		Credentials: creds,
		Sessions:    store,
		Objects:     objClient,
		KB:          kb,
		Secret:      secret,
	})

	return &App{Sessions: store, Server: server}, nil
}

func (a *App) Close() {
	if a.Sessions != nil {
		_ = a.Sessions.Close()
	}
}
