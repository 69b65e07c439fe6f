package db

import (
	"strings"
	"testing"
)

func TestSpanDescription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "collapses whitespace", query: "\n\t\tSELECT id\n\t\tFROM orders\n", want: "SELECT id FROM orders"},
		{name: "empty", query: "  ", want: "sql.query"},
		{name: "truncates", query: "SELECT " + strings.Repeat("x", 600), want: ("SELECT " + strings.Repeat("x", 600))[:maxSpanDescription]},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := spanDescription(tt.query); got != tt.want {
				t.Fatalf("spanDescription() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueryOperation(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"select id from orders":        "SELECT",
		"UPDATE orders SET status = 1": "UPDATE",
		"  delete from carts":          "DELETE",
		"EXPLAIN select 1":             "",
		"":                             "",
	}
	for query, want := range tests {
		if got := queryOperation(query); got != want {
			t.Fatalf("queryOperation(%q) = %q, want %q", query, got, want)
		}
	}
}
