package seed

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Order is one row of the demo sales table. Column names carry the
// currency and count tokens the answer formatter recognizes.
type Order struct {
	OrderID      int64   `parquet:"order_id"`
	CustomerName string  `parquet:"customer_name"`
	Region       string  `parquet:"region"`
	Category     string  `parquet:"product_category"`
	Status       string  `parquet:"status"`
	ItemCount    int32   `parquet:"item_count"`
	TotalAmount  float64 `parquet:"total_amount"`
	OrderDate    string  `parquet:"order_date"`
}

type Generator struct {
	rnd       *rand.Rand
	customers int
	start     time.Time
	days      int
	sequence  int64
}

func NewGenerator(seed int64, customers int, start time.Time, days int) *Generator {
	if customers <= 0 {
		customers = 1
	}
	if days <= 0 {
		days = 1
	}
	return &Generator{
		rnd:       rand.New(rand.NewSource(seed)),
		customers: customers,
		start:     start.UTC(),
		days:      days,
	}
}

func (g *Generator) Next() Order {
	g.sequence++
	category := pickOne(g.rnd, []string{"electronics", "grocery", "fashion", "home", "beauty"})
	items := int32(g.rnd.Intn(6) + 1)
	orderedAt := g.start.AddDate(0, 0, g.rnd.Intn(g.days))

	return Order{
		OrderID:      g.sequence,
		CustomerName: fmt.Sprintf("customer-%04d", g.rnd.Intn(g.customers)+1),
		Region:       pickOne(g.rnd, []string{"Riyadh", "Jeddah", "Dammam", "Mecca", "Medina"}),
		Category:     category,
		Status:       g.pickStatus(),
		ItemCount:    items,
		TotalAmount:  round2(float64(items) * g.unitPrice(category)),
		OrderDate:    orderedAt.Format(time.DateOnly),
	}
}

// Batch returns the next n orders.
func (g *Generator) Batch(n int) []Order {
	orders := make([]Order, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, g.Next())
	}
	return orders
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 70:
		return "delivered"
	case p < 85:
		return "shipped"
	case p < 95:
		return "pending"
	default:
		return "cancelled"
	}
}

func (g *Generator) unitPrice(category string) float64 {
	switch category {
	case "electronics":
		return 150 + g.rnd.Float64()*2350
	case "fashion":
		return 40 + g.rnd.Float64()*460
	case "home":
		return 25 + g.rnd.Float64()*775
	case "beauty":
		return 15 + g.rnd.Float64()*285
	default:
		return 5 + g.rnd.Float64()*95
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
