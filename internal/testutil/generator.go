// Package testutil holds fixtures shared by the adapter tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
)

var methodPattern = regexp.MustCompile(`Relocate method (\w+) of`)

// relocations are valid service-side versions of the leaky fixture's methods.
var relocations = map[string]string{
	"getDiscountedTotal": `public double getDiscountedTotal(Order order) {
    if (order.getTotal() > 100) {
        return order.getTotal() * 0.9;
    }
    return order.getTotal();
}`,
	"getEligibleOrders": `public List<Order> getEligibleOrders() {
    List<Order> eligibleOrders = orderRepository.findEligibleForDiscount();
    for (Order order : eligibleOrders) {
        if (order.getTotal() > 500) {
            order.setTotal(order.getTotal() * 0.95);
        }
    }
    return eligibleOrders;
}`,
	"findEligibleForDiscount": `public List<Order> findEligibleForDiscount() {
    List<Order> orders = orderRepository.findAllOrders();
    return orders.stream()
            .filter(order -> order.getTotal() > 100)
            .peek(order -> order.setTotal(order.getDiscountedTotal()))
            .toList();
}`,
}

// Generator is a domain.TextGenerator that relocates the methods of the leaky
// fixture without calling a model.
type Generator struct {
	mu    sync.Mutex
	calls int
}

func (g *Generator) Generate(_ context.Context, _, instructions string) (string, error) {
	sub := methodPattern.FindStringSubmatch(instructions)
	if sub == nil {
		return "", fmt.Errorf("no method in instructions")
	}
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	data, err := json.Marshal(map[string]string{"relocated_method": relocations[sub[1]]})
	return string(data), err
}

// Calls is the number of answered requests.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Fixture returns the absolute path of a project under testdata/java-layered.
func Fixture(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "testdata", "java-layered", name)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}
