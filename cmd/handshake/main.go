package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clearshot/handshake/adapters/events"
	"github.com/clearshot/handshake/adapters/identity"
	"github.com/clearshot/handshake/adapters/replay"
	"github.com/clearshot/handshake/adapters/store"
	"github.com/clearshot/handshake/adapters/tokenizer"
	"github.com/clearshot/handshake/adapters/verifier"
	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/migrations"
	"github.com/clearshot/handshake/ports"
	"github.com/clearshot/handshake/service"
	transport "github.com/clearshot/handshake/transport/http"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	signKey, err := loadSigningKey(os.Getenv("SESSION_SIGNING_KEY"))
	if err != nil {
		logger.Fatal("failed to load session signing key", zap.Error(err))
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "9000"
	}
	publicURL := os.Getenv("PUBLIC_URL")
	if publicURL == "" {
		publicURL = "http://localhost:" + port
	}
	callbackURL := publicURL + "/auth/callback"

	ctx := context.Background()

	var (
		challenges ports.ChallengeStore
		publisher  message.Publisher
	)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal("failed to parse REDIS_URL", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to reach redis", zap.Error(err))
		}

		challenges = store.NewRedisStore(redisClient, core.DefaultChallengeTTL)
		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			logger.Fatal("failed to create redis publisher", zap.Error(err))
		}
		logger.Info("challenge store backed by redis")
	} else {
		challenges = store.NewMemoryStore()
		publisher = gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
		logger.Info("challenge store in memory, single instance only")
	}

	var identities ports.IdentityRepository
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		if err := migrations.Up(ctx, dsn); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		identities = identity.NewPostgresRepo(pool)
		logger.Info("identity registry backed by postgres")
	} else {
		identities = identity.NewMemoryRepo()
		logger.Info("identity registry in memory, single instance only")
	}

	replayGuard := replay.NewCache(2 * core.DefaultSkewWindow)
	defer replayGuard.Close()

	authService := service.NewAuthService(
		challenges,
		identities,
		tokenizer.NewJWTTokenizer(signKey, tokenizer.DefaultSessionTTL),
		verifier.NewRetrying(verifier.NewSecp256k1(), 3, 50*time.Millisecond),
		replayGuard,
		events.NewWatermillPublisher(publisher),
		logger,
		callbackURL,
	)

	router := transport.SetupRouter(authService, logger)

	logger.Info("handshake service listening", zap.String("port", port), zap.String("callback_url", callbackURL))
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// loadSigningKey parses a hex-encoded EC private key (SEC 1, DER) from the
// environment, or mints an ephemeral one when unset. An ephemeral key
// invalidates all outstanding sessions on restart.
func loadSigningKey(raw string) (*ecdsa.PrivateKey, error) {
	if raw == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	der, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	return x509.ParseECPrivateKey(der)
}
