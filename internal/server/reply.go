package server

import (
	"fmt"
	"strings"

	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/pkg/utils"
)

const (
	replyEmptyQuestion = "Please ask a question."
	replyOffline       = "Sorry, the AI search is currently offline."
	replyNoMatches     = "I couldn't find any books that match your request. Try rephrasing your question."
	replyError         = "Sorry, I ran into an error trying to find books for you."
)

// formatReply renders ranked books as the chat answer, keeping their order.
func formatReply(resp *models.SearchResponse) string {
	if resp == nil || resp.NoMatches || len(resp.Results) == 0 {
		return replyNoMatches
	}
	var b strings.Builder
	b.WriteString("Based on your request, I found these books for you:\n\n")
	for _, r := range resp.Results {
		book := r.Book
		fmt.Fprintf(&b, "• **%s** by %s\n (Location: %s)\n\n",
			book.Title,
			utils.OrDefault(book.Author, "Unknown author"),
			utils.OrDefault(book.Location, "N/A"))
	}
	return b.String()
}
