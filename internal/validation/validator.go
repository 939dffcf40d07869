package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosight/formsight/internal/config"
)

var (
	// ErrInvalidKey is returned for unknown, inactive or malformed form keys
	ErrInvalidKey = errors.New("invalid form key")

	keyCacheTTL = 5 * time.Minute
)

const (
	minKeyLength  = 12
	localLimiters = 10000
)

// lookupFunc resolves a key hash to its form key id
type lookupFunc func(ctx context.Context, keyHash string) (string, error)

// Validator authenticates capture batches by form key and rate limits them
// per key. Redis holds the key cache and the shared rate counters; when it
// is unavailable each process limits on its own.
type Validator struct {
	db     *pgxpool.Pool
	redis  *redis.Client
	lookup lookupFunc
	rps    int
	burst  int
	local  *lru.Cache[string, *rate.Limiter]
}

func NewValidator(cfg *config.Config) (*Validator, error) {
	// Connect to PostgreSQL
	db, err := pgxpool.New(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}

	// Connect to Redis
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	v := newValidator(rdb, nil, cfg.RateLimit)
	v.db = db
	v.lookup = v.lookupDB
	return v, nil
}

func newValidator(rdb *redis.Client, lookup lookupFunc, rl config.RateLimitConfig) *Validator {
	burst := rl.Burst
	if burst <= 0 {
		burst = rl.RequestsPerSecond
	}
	local, _ := lru.New[string, *rate.Limiter](localLimiters)
	return &Validator{
		redis:  rdb,
		lookup: lookup,
		rps:    rl.RequestsPerSecond,
		burst:  burst,
		local:  local,
	}
}

// ValidateFormKey returns the id of the form key. Results are cached in
// Redis by key hash for five minutes.
func (v *Validator) ValidateFormKey(ctx context.Context, formKey string) (string, error) {
	if len(formKey) < minKeyLength {
		return "", ErrInvalidKey
	}

	// Hash the key
	hash := sha256.Sum256([]byte(formKey))
	keyHash := hex.EncodeToString(hash[:])
	cacheKey := "formkey:" + keyHash

	// Check cache first
	if v.redis != nil {
		if id, err := v.redis.Get(ctx, cacheKey).Result(); err == nil {
			return id, nil
		}
	}

	id, err := v.lookup(ctx, keyHash)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) && !errors.Is(err, ErrInvalidKey) {
			log.Error().Err(err).Msg("Form key lookup failed")
		}
		return "", ErrInvalidKey
	}

	if v.redis != nil {
		if err := v.redis.Set(ctx, cacheKey, id, keyCacheTTL).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to cache form key")
		}
	}
	return id, nil
}

func (v *Validator) lookupDB(ctx context.Context, keyHash string) (string, error) {
	var id string
	err := v.db.QueryRow(ctx, `
		SELECT id::text FROM form_keys
		WHERE key_hash = $1 AND is_active = true
		AND (expires_at IS NULL OR expires_at > NOW())
	`, keyHash).Scan(&id)
	if err != nil {
		return "", err
	}

	// Update last used
	go func() {
		_, err := v.db.Exec(context.Background(), `
			UPDATE form_keys
			SET last_used_at = NOW(), request_count = request_count + 1
			WHERE key_hash = $1
		`, keyHash)
		if err != nil {
			log.Debug().Err(err).Msg("Failed to update form key usage")
		}
	}()

	return id, nil
}

// CheckRateLimit reports whether another batch for formKeyID is allowed in
// the current one second window
func (v *Validator) CheckRateLimit(ctx context.Context, formKeyID string) bool {
	if v.rps <= 0 {
		return true
	}

	if v.redis != nil {
		key := "ratelimit:" + formKeyID

		// Increment counter
		count, err := v.redis.Incr(ctx, key).Result()
		if err == nil {
			// Set expiry on first request
			if count == 1 {
				v.redis.Expire(ctx, key, time.Second)
			}
			return count <= int64(v.rps)
		}
		log.Warn().Err(err).Msg("Redis rate limit unavailable, limiting locally")
	}

	return v.localLimiter(formKeyID).Allow()
}

func (v *Validator) localLimiter(formKeyID string) *rate.Limiter {
	if l, ok := v.local.Get(formKeyID); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(v.rps), v.burst)
	if prev, ok, _ := v.local.PeekOrAdd(formKeyID, l); ok {
		return prev
	}
	return l
}

func (v *Validator) Close() {
	if v.db != nil {
		v.db.Close()
	}
	if v.redis != nil {
		v.redis.Close()
	}
}
