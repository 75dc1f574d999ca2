package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/clients/postgres"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
)

// Dev seed: a couple of users with grocery preferences and a small
// product catalog so the scan pipeline has something to chew on locally.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()
	db := pgClient.DB()

	users := []struct {
		email     string
		interests []string
		stores    []string
	}{
		{"ana@example.com", []string{"mlijeko i jogurt", "čokolada"}, []string{"Bingo"}},
		{"emir@example.com", []string{"kafa", "hljeb i sir"}, nil},
	}

	for _, u := range users {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (id, email, email_notifications, grocery_interests, preferred_stores, created_at, updated_at)
			VALUES ($1, $2, true, $3, $4, NOW(), NOW())
			ON CONFLICT (email) DO NOTHING`,
			uuid.New().String(), u.email, pq.Array(u.interests), pq.Array(u.stores),
		)
		if err != nil {
			log.Fatalf("Failed to seed user %s: %v", u.email, err)
		}
		log.Printf("Seeded user %s", u.email)
	}

	nextWeek := time.Now().AddDate(0, 0, 7)
	products := []struct {
		title     string
		category  string
		storeID   string
		storeName string
		base      float64
		discount  *float64
		expires   *time.Time
	}{
		{"Meggle svježe mlijeko 1l", "mlijecni proizvodi", "store-bingo", "Bingo", 2.50, f(1.95), &nextWeek},
		{"Dukat jogurt 500g", "mlijecni proizvodi", "store-bingo", "Bingo", 1.80, nil, nil},
		{"Milka čokolada 100g", "slatkiši", "store-konzum", "Konzum", 3.20, f(2.40), &nextWeek},
		{"Zlatna džezva kafa 500g", "kafa", "store-konzum", "Konzum", 8.90, f(6.99), &nextWeek},
		{"Klas hljeb 600g", "pekara", "store-bingo", "Bingo", 1.20, nil, nil},
		{"Livanjski sir 300g", "mlijecni proizvodi", "store-konzum", "Konzum", 7.50, nil, nil},
	}

	for _, p := range products {
		_, err := db.ExecContext(ctx, `
			INSERT INTO products (id, title, category, city, store_id, store_name, base_price, discount_price, discount_expires, created_at, updated_at)
			VALUES ($1, $2, $3, 'Sarajevo', $4, $5, $6, $7, $8, NOW(), NOW())
			ON CONFLICT DO NOTHING`,
			uuid.New().String(), p.title, p.category, p.storeID, p.storeName, p.base, p.discount, p.expires,
		)
		if err != nil {
			log.Fatalf("Failed to seed product %s: %v", p.title, err)
		}
		log.Printf("Seeded product %s", p.title)
	}

	log.Println("Seeding complete. Run the embedding refresh and reindex jobs to make products searchable.")
}

func f(v float64) *float64 { return &v }
