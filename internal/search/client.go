package search

import (
	"github.com/meilisearch/meilisearch-go"

	"content-tasks/internal/database"
	"content-tasks/internal/faults"
)

const postsIndex = "posts"

// PostDocument is the shape pushed into the search index. The index is a
// write-only consumer from this service's point of view; queries happen
// elsewhere.
type PostDocument struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Slug           string `json:"slug"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	ThumbnailImage string `json:"thumbnail_image,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// Indexer pushes post documents into Meilisearch.
type Indexer struct {
	index meilisearch.IndexManager
}

func NewIndexer(host, apiKey string) *Indexer {
	client := meilisearch.New(host, meilisearch.WithAPIKey(apiKey))
	return &Indexer{index: client.Index(postsIndex)}
}

// DocumentFromPost maps a post row to its index document.
func DocumentFromPost(p database.Post) PostDocument {
	doc := PostDocument{
		ID:        p.ID,
		UserID:    p.UserID,
		Slug:      p.Slug,
		Title:     p.Title,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.Unix(),
	}
	if p.ThumbnailImage != nil {
		doc.ThumbnailImage = *p.ThumbnailImage
	}
	return doc
}

// IndexPosts upserts a batch of documents keyed by post id.
func (i *Indexer) IndexPosts(docs []PostDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := i.index.AddDocuments(docs, "id"); err != nil {
		return faults.Infrastructure(err, "index %d posts", len(docs))
	}
	return nil
}
