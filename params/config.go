package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Storage struct {
	// DataDir holds the pebble database. Empty means in-memory only.
	DataDir string
}

type API struct {
	ListenAddr string
	// ReadTimeout bounds how long a request may take to arrive in full.
	ReadTimeout time.Duration
}

type Node struct {
	// LogFile duplicates structured logs to a file when set.
	LogFile string
	// BlockTick is the synthetic block cadence of the dev node. Each tick
	// advances the height and timestamp stamped onto incoming calls.
	BlockTick time.Duration
}

type Config struct {
	Storage Storage
	API     API
	Node    Node
}

func Default() Config {
	return Config{
		Storage: Storage{
			DataDir: "data",
		},
		API: API{
			ListenAddr:  ":8080",
			ReadTimeout: 10 * time.Second,
		},
		Node: Node{
			BlockTick: time.Second,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if addr := os.Getenv("API_LISTEN_ADDR"); addr != "" {
		cfg.API.ListenAddr = addr
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Node.LogFile = logFile
	}
	if tick := os.Getenv("NODE_BLOCK_TICK_MS"); tick != "" {
		if ms, err := strconv.Atoi(tick); err == nil && ms > 0 {
			cfg.Node.BlockTick = time.Duration(ms) * time.Millisecond
		}
	}
	if rt := os.Getenv("API_READ_TIMEOUT_MS"); rt != "" {
		if ms, err := strconv.Atoi(rt); err == nil && ms > 0 {
			cfg.API.ReadTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}
