package seed

import (
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

type Customer struct {
	Name     string
	JoinDate string
	Region   sql.NullString
}

type Product struct {
	Name      string
	Category  string
	Price     float64
	Inventory int
}

type Order struct {
	CustomerID int64
	OrderDate  string
	Status     string
}

type OrderItem struct {
	OrderID   int64
	ProductID int64
	Quantity  int
}

var customerNames = []string{
	"Alice Smith", "Bob Jones", "Charlie Brown", "David Wilson",
	"Eva Green", "Frank White", "Grace Hall",
}

// Some customers carry no region, a literal "n/a", or an off-list value.
// Demo questions are supposed to run into real-world data quality.
var customerRegions = []sql.NullString{
	{String: "North", Valid: true},
	{String: "South", Valid: true},
	{String: "East", Valid: true},
	{String: "West", Valid: true},
	{},
	{String: "n/a", Valid: true},
	{String: "Northeast", Valid: true},
}

// Category labels repeat with inconsistent casing on purpose.
var productCategories = []string{
	"Electronics", "electronics", "Clothing", "Home", "Books", "Toys", "ELECTRONICS",
}

var productNamesByCategory = map[string][]string{
	"Electronics": {"Smartphone", "Laptop", "Headphones", "Monitor", "Keyboard"},
	"Clothing":    {"T-Shirt", "Jeans", "Jacket", "Sneakers", "Hat"},
	"Home":        {"Blender", "Toaster", "Lamp", "Chair", "Table"},
	"Books":       {"Novel", "Textbook", "Cookbook", "Biography", "Comic"},
	"Toys":        {"Action Figure", "Doll", "Puzzle", "Board Game", "Lego Set"},
}

var orderStatuses = []string{"Pending", "Shipped", "Delivered", "Cancelled", "returned"}

type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Customer produces the n-th demo customer. The index suffix keeps names
// unique even though the base names repeat.
func (g *Generator) Customer(n int) Customer {
	return Customer{
		Name:     fmt.Sprintf("%s %d", pickOne(g.rnd, customerNames), n),
		JoinDate: g.dateWithin(730),
		Region:   pickOne(g.rnd, customerRegions),
	}
}

func (g *Generator) Product() Product {
	category := pickOne(g.rnd, productCategories)
	pool := productNamesByCategory[canonicalCategory(category)]
	return Product{
		Name:      fmt.Sprintf("%s %d", pickOne(g.rnd, pool), 100+g.rnd.Intn(900)),
		Category:  category,
		Price:     round2(10 + g.rnd.Float64()*990),
		Inventory: g.rnd.Intn(101),
	}
}

func (g *Generator) Order(customerIDs []int64) Order {
	return Order{
		CustomerID: pickOne(g.rnd, customerIDs),
		OrderDate:  g.dateWithin(60),
		Status:     pickOne(g.rnd, orderStatuses),
	}
}

// Items returns 1-5 line items for an order, each referencing a distinct
// product.
func (g *Generator) Items(orderID int64, productIDs []int64) []OrderItem {
	count := 1 + g.rnd.Intn(5)
	if count > len(productIDs) {
		count = len(productIDs)
	}

	items := make([]OrderItem, 0, count)
	for _, idx := range g.rnd.Perm(len(productIDs))[:count] {
		items = append(items, OrderItem{
			OrderID:   orderID,
			ProductID: productIDs[idx],
			Quantity:  1 + g.rnd.Intn(10),
		})
	}
	return items
}

func (g *Generator) dateWithin(days int) string {
	return g.now().AddDate(0, 0, -g.rnd.Intn(days+1)).Format("2006-01-02")
}

// canonicalCategory folds the messy category labels onto a name pool key.
// Unknown labels fall back to Electronics.
func canonicalCategory(category string) string {
	if category == "" {
		return "Electronics"
	}
	key := strings.ToUpper(category[:1]) + strings.ToLower(category[1:])
	if _, ok := productNamesByCategory[key]; !ok {
		return "Electronics"
	}
	return key
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne[T any](r *rand.Rand, values []T) T {
	return values[r.Intn(len(values))]
}
