// Command seed-db loads the product catalog, a set of storefront coupons, and
// a default admin API key into the database. It is idempotent: rerunning it
// upserts the same rows.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/karim1556/ecom-core/internal/repository"
)

type productJSON struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	DiscountPercent   decimal.Decimal `json:"discountPercent"`
	Category          string          `json:"category"`
	StockQuantity     int             `json:"stockQuantity"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	TrackStock        bool            `json:"trackStock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or ECOM_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ECOM_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ECOM_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or ECOM_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ECOM_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, price, discount_percent, category, stock_quantity, low_stock_threshold, track_stock)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	price = EXCLUDED.price,
	discount_percent = EXCLUDED.discount_percent,
	category = EXCLUDED.category,
	stock_quantity = EXCLUDED.stock_quantity,
	low_stock_threshold = EXCLUDED.low_stock_threshold,
	track_stock = EXCLUDED.track_stock`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.DiscountPercent, p.Category,
			p.StockQuantity, p.LowStockThreshold, p.TrackStock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertCouponSQL = `
INSERT INTO coupons (id, code, discount_type, value, min_order_amount, max_discount, usage_limit, active, expires_at, products, categories)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (code) DO UPDATE SET
	discount_type = EXCLUDED.discount_type,
	value = EXCLUDED.value,
	min_order_amount = EXCLUDED.min_order_amount,
	max_discount = EXCLUDED.max_discount,
	usage_limit = EXCLUDED.usage_limit,
	active = EXCLUDED.active,
	expires_at = EXCLUDED.expires_at,
	products = EXCLUDED.products,
	categories = EXCLUDED.categories`

type couponSeed struct {
	ID             string
	Code           string
	DiscountType   string
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxDiscount    decimal.Decimal
	UsageLimit     int
	Active         bool
	ExpiresAt      *time.Time
	Products       []string
	Categories     []string
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding storefront coupons")

	coupons := []couponSeed{
		{
			ID:           "c-save20",
			Code:         "SAVE20",
			DiscountType: "percentage",
			Value:        decimal.NewFromInt(20),
			MaxDiscount:  decimal.NewFromInt(50),
			Active:       true,
		},
		{
			ID:             "c-flat500",
			Code:           "FLAT500",
			DiscountType:   "fixed",
			Value:          decimal.NewFromInt(500),
			MinOrderAmount: decimal.NewFromInt(1500),
			UsageLimit:     1000,
			Active:         true,
		},
		{
			// One redemption total across all users.
			ID:           "c-lastcall",
			Code:         "LASTCALL",
			DiscountType: "fixed",
			Value:        decimal.NewFromInt(50),
			UsageLimit:   1,
			Active:       true,
		},
		{
			ID:           "c-tech10",
			Code:         "TECH10",
			DiscountType: "percentage",
			Value:        decimal.NewFromInt(10),
			MaxDiscount:  decimal.NewFromInt(300),
			Active:       true,
			Categories:   []string{"electronics"},
		},
	}

	for _, c := range coupons {
		products := c.Products
		if products == nil {
			products = []string{}
		}
		categories := c.Categories
		if categories == nil {
			categories = []string{}
		}
		if _, err := pool.Exec(ctx, upsertCouponSQL,
			c.ID, c.Code, c.DiscountType, c.Value, c.MinOrderAmount, c.MaxDiscount,
			c.UsageLimit, c.Active, c.ExpiresAt, products, categories,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code))
	}

	return nil
}

const upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, name, scopes, active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	key_hash = EXCLUDED.key_hash,
	name = EXCLUDED.name,
	scopes = EXCLUDED.scopes,
	active = EXCLUDED.active`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default admin key", []string{"admin"}, true,
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}
