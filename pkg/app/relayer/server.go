// Package relayer implements app.Runner for the relayer process.
package relayer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/ckb-bridge-relayer/pkg/app/http"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/rpc"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/txgen"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/ckb/types"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/config"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/keys"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/pgutil"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/relayer"
)

const defaultHTTPMiddlewareTimeout = 60 * time.Second

// Server holds configuration for the relayer process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new relayer Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the relayer engine and the operational HTTP server.
// It blocks until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting CKB bridge relayer", zap.String("role", cfg.Relayer.Role))

	bunDB, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect relayer db: %w", err)
	}
	store := db.NewStore(bunDB)
	defer func() { _ = store.Close() }()
	logger.Info("Database connection established")

	node, err := rpc.Dial(ctx, cfg.CKB.RPCURL, logger.Named("ckb"))
	if err != nil {
		return fmt.Errorf("dial ckb node: %w", err)
	}
	defer node.Close()

	indexer, err := rpc.DialIndexer(ctx, cfg.CKB.IndexerURL, node, cfg.Relayer.IndexerSyncInterval, logger.Named("indexer"))
	if err != nil {
		return fmt.Errorf("dial ckb indexer: %w", err)
	}
	defer indexer.Close()

	key, err := loadCommitteeKey(&cfg.CKB)
	if err != nil {
		return fmt.Errorf("load committee key: %w", err)
	}

	genCfg := generatorConfig(&cfg.CKB)
	scripts := &relayer.Scripts{
		CommitteeLock:      key.LockScript(genCfg.Secp256k1.CodeHash, genCfg.Secp256k1.HashType),
		SudtCodeHash:       genCfg.SudtType.CodeHash,
		RecipientCodeHash:  common.HexToHash(cfg.CKB.Deps.RecipientType.CodeHash),
		BridgeLockCodeHash: genCfg.BridgeLock.CodeHash,
		BridgeLockHashType: genCfg.BridgeLock.HashType,
	}
	logger.Info("Committee lock loaded", zap.String("lock_hash", scripts.CommitteeLock.Hash().Hex()))

	engine := relayer.NewEngine(cfg, scripts, relayer.Dependencies{
		Chain:     node,
		Indexer:   indexer,
		Store:     store,
		Generator: txgen.NewGenerator(indexer, genCfg, logger.Named("txgen")),
		Signer:    key,
	}, logger)

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start relayer engine: %w", err)
	}
	defer engine.Stop()

	router := s.newRouter(store, engine, logger)
	httpServer := apphttp.NewServer(router, &cfg.Server)

	return apphttp.ServeAndWait(ctx, logger, httpServer, cfg.Server.ShutdownTimeout)
}

func (s *Server) newRouter(store RecordReader, engine EngineStatus, logger *zap.Logger) http.Handler {
	h := &handler{store: store, engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", apphttp.HandleError(h.status))
		r.Get("/burns", apphttp.HandleError(h.listBurns))
		r.Get("/burns/{txHash}", apphttp.HandleError(h.getBurn))
		r.Get("/mints/{id}", apphttp.HandleError(h.getMint))
	})

	return r
}

func loadCommitteeKey(cfg *config.CKBConfig) (*keys.CommitteeKey, error) {
	if cfg.EncryptedPrivateKey == "" {
		return keys.CommitteeKeyFromHex(cfg.PrivateKey)
	}
	masterKey, err := keys.MasterKeyFromBase64(cfg.MasterKey)
	if err != nil {
		return nil, err
	}
	return keys.CommitteeKeyFromEncrypted(cfg.EncryptedPrivateKey, masterKey)
}

func generatorConfig(cfg *config.CKBConfig) txgen.Config {
	return txgen.Config{
		Secp256k1:  scriptDep(cfg.Deps.Secp256k1),
		SudtType:   scriptDep(cfg.Deps.SudtType),
		BridgeLock: scriptDep(cfg.Deps.BridgeLock),
		Fee:        cfg.Fee,
	}
}

func scriptDep(c config.ScriptDepConfig) txgen.ScriptDep {
	return txgen.ScriptDep{
		CodeHash: common.HexToHash(c.CodeHash),
		HashType: types.HashType(c.HashType),
		CellDep: types.CellDep{
			OutPoint: types.OutPoint{TxHash: common.HexToHash(c.TxHash), Index: hexutil.Uint(c.Index)},
			DepType:  types.DepType(c.DepType),
		},
	}
}
