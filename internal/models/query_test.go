package models

import (
	"testing"
)

func TestSearchQuery_Normalize(t *testing.T) {
	tests := []struct {
		name string
		k    int
		want int
	}{
		{"unset uses default", 0, 3},
		{"negative uses default", -2, 3},
		{"within range kept", 7, 7},
		{"capped at max", 500, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &SearchQuery{Query: "x", K: tt.k}
			q.Normalize(3, 50)
			if q.K != tt.want {
				t.Errorf("K = %d, want %d", q.K, tt.want)
			}
		})
	}
}

func TestBook_HasDescription(t *testing.T) {
	tests := []struct {
		desc string
		want bool
	}{
		{"", false},
		{"   \n\t", false},
		{"A history of rockets", true},
	}
	for _, tt := range tests {
		b := &Book{Description: tt.desc}
		if got := b.HasDescription(); got != tt.want {
			t.Errorf("HasDescription(%q) = %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestBookInput_Apply(t *testing.T) {
	in := &BookInput{Title: "Dune", Author: "Frank Herbert", Description: "Desert planet"}
	b := &Book{}
	in.Apply(b)
	if b.Title != "Dune" || b.Author != "Frank Herbert" || b.Description != "Desert planet" {
		t.Errorf("unexpected book: %+v", b)
	}
	if !b.Available {
		t.Error("new books should default to available")
	}

	existing := &Book{ID: 4, Available: false}
	(&BookInput{Title: "Dune"}).Apply(existing)
	if existing.Available {
		t.Error("updating a book without an availability flag should keep it")
	}

	no := false
	(&BookInput{Title: "Dune", Available: &no}).Apply(b)
	if b.Available {
		t.Error("explicit availability should be honored")
	}
}
