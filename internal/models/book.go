// Package models defines core data structures for books, queries, and search results.
package models

import (
	"strings"
	"time"
)

// Book is a catalog record. The relational table is authoritative for every field;
// Embedding is a denormalized backup of the book's vector in the search index and
// may lag behind it while an index update is failing.
type Book struct {
	ID           int64     `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Author       string    `json:"author,omitempty" db:"author"`
	Location     string    `json:"location,omitempty" db:"location"`
	Section      string    `json:"section,omitempty" db:"section"`
	CategoryName string    `json:"category_name,omitempty" db:"category_name"`
	Description  string    `json:"description,omitempty" db:"description"`
	Available    bool      `json:"available" db:"available"`
	Embedding    []float32 `json:"-" db:"embedding"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// HasDescription reports whether the book is eligible for the semantic index.
func (b *Book) HasDescription() bool {
	return strings.TrimSpace(b.Description) != ""
}

// BookText is the projection read by a full index rebuild.
type BookText struct {
	ID          int64
	Description string
}

// BookInput is the input for creating or updating a book.
type BookInput struct {
	Title        string `json:"title"`
	Author       string `json:"author,omitempty"`
	Location     string `json:"location,omitempty"`
	Section      string `json:"section,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	Description  string `json:"description,omitempty"`
	Available    *bool  `json:"available,omitempty"`
}

// Apply copies the input onto b. Available defaults to true for new books.
func (in *BookInput) Apply(b *Book) {
	b.Title = in.Title
	b.Author = in.Author
	b.Location = in.Location
	b.Section = in.Section
	b.CategoryName = in.CategoryName
	b.Description = in.Description
	if in.Available != nil {
		b.Available = *in.Available
	} else if b.ID == 0 {
		b.Available = true
	}
}
