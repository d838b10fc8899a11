// Package intent classifies chat messages into search, detail, compare or plain chat.
package intent

import (
	"context"

	"github.com/eldtechnologies/pricechat/internal/models"
)

// Kind is the classified purpose of a message.
type Kind string

const (
	KindChat    Kind = "chat"
	KindSearch  Kind = "search"
	KindDetail  Kind = "detail"
	KindCompare Kind = "compare"
)

// MaxCompare is the largest number of products a comparison holds.
const MaxCompare = 3

// Canned replies that need no model call.
const (
	Welcome = "Xin chào! Tôi là trợ lý so sánh giá điện thoại. Bạn có thể hỏi tôi về một mẫu máy cụ thể " +
		"(ví dụ: \"iPhone 15 Pro\"), một thương hiệu (\"điện thoại Samsung\"), một khoảng giá " +
		"(\"điện thoại dưới 8 triệu\") hoặc so sánh các mẫu máy (\"so sánh iPhone 15 và Galaxy S24\")."
	Nudge = "Bạn muốn tìm điện thoại nào? Hãy cho tôi biết tên máy, thương hiệu hoặc khoảng giá bạn quan tâm."
)

// Intent is a tagged variant. Only the fields of its Kind are set.
type Intent struct {
	Kind Kind

	// Chat: a prepared reply. Empty means the model answers freely.
	Canned string

	// Search
	Keywords string
	Filters  models.Filters

	// Detail
	ProductID string

	// Compare: unique ids, at most MaxCompare.
	ProductIDs []string
}

// Chat builds a chat intent. A non-empty canned reply skips the model.
func Chat(canned string) Intent {
	return Intent{Kind: KindChat, Canned: canned}
}

// Search builds a product search intent.
func Search(keywords string, filters models.Filters) Intent {
	return Intent{Kind: KindSearch, Keywords: keywords, Filters: filters}
}

// Detail builds a single-product intent.
func Detail(productID string) Intent {
	return Intent{Kind: KindDetail, ProductID: productID}
}

// Compare builds a comparison intent from the first MaxCompare unique non-empty ids.
func Compare(ids ...string) Intent {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, MaxCompare)
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
		if len(unique) == MaxCompare {
			break
		}
	}
	return Intent{Kind: KindCompare, ProductIDs: unique}
}

// ResponseType is the reply type a successful turn of this intent produces.
func (i Intent) ResponseType() models.ResponseType {
	switch i.Kind {
	case KindSearch:
		return models.TypeProductList
	case KindDetail:
		return models.TypeProductDetail
	case KindCompare:
		return models.TypeProductComparison
	default:
		return models.TypeText
	}
}

// Resolver turns a message and its session history into an Intent.
// Resolve never fails; at worst it misclassifies.
type Resolver interface {
	Resolve(ctx context.Context, history []models.Message, message string) Intent
}
